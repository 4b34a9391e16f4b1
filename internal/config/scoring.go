package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
	// Timezone names must resolve on hosts without a tz database.
	_ "time/tzdata"

	"github.com/banshee-data/wellness.report/internal/catalog"
	"github.com/banshee-data/wellness.report/internal/score"
)

// DefaultConfigPath is the path to the canonical scoring defaults file.
const DefaultConfigPath = "config/wellness.defaults.json"

// ScoringConfig is the root configuration of the scoring service. Every
// field is optional; the Get* methods supply defaults for omitted ones.
type ScoringConfig struct {
	// Engine params
	HistoryLength   *int    `json:"history_length,omitempty"`
	Imputation      *string `json:"imputation,omitempty"` // nearest_mean | prior | mode
	TrustMode       *string `json:"trust_mode,omitempty"` // arithmetic | geometric
	ClampPrediction *bool   `json:"clamp_prediction,omitempty"`
	Seed            *int64  `json:"seed,omitempty"`

	// Worker params
	RunAt    *string `json:"run_at,omitempty"`   // facility time of day like "23:30"
	Interval *string `json:"interval,omitempty"` // duration string like "15m"
	Timezone *string `json:"timezone,omitempty"` // tz database name; empty means the host's zone

	// Service params
	CatalogPath *string `json:"catalog_path,omitempty"`
	DBPath      *string `json:"db_path,omitempty"`
	Listen      *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// DefaultScoringConfig returns a config with every field set to its default.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		HistoryLength:   ptrInt(score.DefaultHistoryLength),
		Imputation:      ptrString("nearest_mean"),
		TrustMode:       ptrString("arithmetic"),
		ClampPrediction: ptrBool(false),
		RunAt:           ptrString("23:30"),
		Interval:        ptrString("15m"),
		DBPath:          ptrString("wellness.db"),
		Listen:          ptrString(":8080"),
	}
}

// LoadScoringConfig loads a ScoringConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Omitted fields keep their
// defaults, so partial configs are safe.
func LoadScoringConfig(path string) (*ScoringConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ScoringConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. Failures wrap
// catalog.ErrConfig.
func (c *ScoringConfig) Validate() error {
	if c.HistoryLength != nil && *c.HistoryLength < 1 {
		return &catalog.ConfigError{Field: "history_length", Reason: fmt.Sprintf("must be at least 1, got %d", *c.HistoryLength)}
	}
	if c.Imputation != nil {
		s, err := score.ParseStrategy(*c.Imputation)
		if err != nil {
			return err
		}
		if s == score.StrategyMean {
			return &catalog.ConfigError{Field: "imputation", Reason: "mean is not a valid day imputation strategy"}
		}
	}
	if c.TrustMode != nil {
		if _, err := score.ParseTrustMode(*c.TrustMode); err != nil {
			return err
		}
	}
	if c.RunAt != nil && *c.RunAt != "" {
		if _, err := time.Parse("15:04", *c.RunAt); err != nil {
			return &catalog.ConfigError{Field: "run_at", Reason: fmt.Sprintf("invalid time of day %q", *c.RunAt)}
		}
	}
	if c.Interval != nil && *c.Interval != "" {
		d, err := time.ParseDuration(*c.Interval)
		if err != nil || d <= 0 {
			return &catalog.ConfigError{Field: "interval", Reason: fmt.Sprintf("invalid duration %q", *c.Interval)}
		}
	}
	if c.Timezone != nil && *c.Timezone != "" {
		if _, err := time.LoadLocation(*c.Timezone); err != nil {
			return &catalog.ConfigError{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", *c.Timezone)}
		}
	}
	return nil
}

// GetHistoryLength returns the history_length value or the default.
func (c *ScoringConfig) GetHistoryLength() int {
	if c.HistoryLength == nil {
		return score.DefaultHistoryLength
	}
	return *c.HistoryLength
}

// GetImputation returns the imputation strategy or the default.
func (c *ScoringConfig) GetImputation() score.Strategy {
	if c.Imputation == nil {
		return score.StrategyNearestMean
	}
	s, err := score.ParseStrategy(*c.Imputation)
	if err != nil {
		return score.StrategyNearestMean
	}
	return s
}

// GetTrustMode returns the trust mode or the default.
func (c *ScoringConfig) GetTrustMode() score.TrustMode {
	if c.TrustMode == nil {
		return score.TrustArithmetic
	}
	m, err := score.ParseTrustMode(*c.TrustMode)
	if err != nil {
		return score.TrustArithmetic
	}
	return m
}

// GetClampPrediction returns the clamp_prediction value or the default.
func (c *ScoringConfig) GetClampPrediction() bool {
	if c.ClampPrediction == nil {
		return false
	}
	return *c.ClampPrediction
}

// GetRunAt returns the daily run time as an offset from midnight in the
// facility's timezone.
func (c *ScoringConfig) GetRunAt() time.Duration {
	const def = 23*time.Hour + 30*time.Minute
	if c.RunAt == nil || *c.RunAt == "" {
		return def
	}
	t, err := time.Parse("15:04", *c.RunAt)
	if err != nil {
		return def
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// GetInterval returns how often the worker wakes up.
func (c *ScoringConfig) GetInterval() time.Duration {
	if c.Interval == nil || *c.Interval == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(*c.Interval)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// GetLocation returns the facility's timezone, which decides where one
// day ends and the next begins. It defaults to the host's local zone.
func (c *ScoringConfig) GetLocation() *time.Location {
	if c.Timezone == nil || *c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(*c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetDBPath returns the database path or the default.
func (c *ScoringConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "wellness.db"
	}
	return *c.DBPath
}

// GetListen returns the HTTP listen address or the default.
func (c *ScoringConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// LoadCatalog loads catalog_path, or the built-in catalog when unset.
func (c *ScoringConfig) LoadCatalog() (*catalog.Catalog, error) {
	if c.CatalogPath == nil || *c.CatalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(*c.CatalogPath)
}

// ToOptions builds engine options. A configured seed makes prior sampling
// reproducible; otherwise the engine seeds from the wall clock.
func (c *ScoringConfig) ToOptions() score.Options {
	opts := score.Options{
		HistoryLength:   c.GetHistoryLength(),
		Strategy:        c.GetImputation(),
		TrustMode:       c.GetTrustMode(),
		ClampPrediction: c.GetClampPrediction(),
	}
	if c.Seed != nil {
		opts.Rand = rand.New(rand.NewSource(*c.Seed))
	}
	return opts
}
