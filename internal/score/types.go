// Package score is the daily wellness scoring and prediction engine. It turns
// one day's partially-missing observations for a resident into a normalized
// wellness score, a filling rate, a trust index and a next-day prediction,
// keeping a bounded rolling history of finalized days.
//
// The engine is synchronous and holds no locks: a ResidentState must not be
// updated concurrently. Distinct residents share only the read-only catalog.
package score

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/wellness.report/internal/catalog"
)

// Error kinds, shared with the catalog so errors.Is works across packages.
var (
	ErrDomain = catalog.ErrDomain
	ErrConfig = catalog.ErrConfig
)

type (
	DomainError = catalog.DomainError
	ConfigError = catalog.ConfigError
)

// Observation is one raw (item, value) pair. A nil Value is the explicit
// "no value" marker; a negative Value is also treated as missing.
type Observation struct {
	ItemID int
	Value  *float64
}

// Value returns a pointer to v, for building observations.
func Value(v float64) *float64 { return &v }

// Missing reports whether the observation carries no usable value.
func (o Observation) Missing() bool {
	return o.Value == nil || math.IsNaN(*o.Value) || *o.Value < 0
}

// ItemScore is one resolved item score of a finalized day.
type ItemScore struct {
	ItemID int `json:"item_id"`
	Score  int `json:"score"`
}

// DayRecord holds every catalog item's resolved score for one day, in
// ascending item id order. Filled[i] is true iff Values[i] was supplied
// rather than imputed.
type DayRecord struct {
	Values []ItemScore `json:"values"`
	Filled []bool      `json:"filled"`
}

// FillingRate is the fraction of supplied (non-imputed) items.
func (d DayRecord) FillingRate() float64 {
	if len(d.Filled) == 0 {
		return 0
	}
	n := 0
	for _, f := range d.Filled {
		if f {
			n++
		}
	}
	return float64(n) / float64(len(d.Filled))
}

// ScoreOf returns the resolved score for id.
func (d DayRecord) ScoreOf(id int) (int, bool) {
	for _, v := range d.Values {
		if v.ItemID == id {
			return v.Score, true
		}
	}
	return 0, false
}

// Imputed returns the ids of items that were imputed.
func (d DayRecord) Imputed() []int {
	var ids []int
	for i, f := range d.Filled {
		if !f {
			ids = append(ids, d.Values[i].ItemID)
		}
	}
	return ids
}

func (d DayRecord) clone() DayRecord {
	out := DayRecord{
		Values: make([]ItemScore, len(d.Values)),
		Filled: make([]bool, len(d.Filled)),
	}
	copy(out.Values, d.Values)
	copy(out.Filled, d.Filled)
	return out
}

// Result is the output record of one update.
type Result struct {
	Score4Today    float64 `json:"score_today"`
	Score4Tomorrow float64 `json:"score_tomorrow"`
	TrustIndex     float64 `json:"trust_index"`
	FillingRate    float64 `json:"filling_rate"`
}

func (r Result) String() string {
	return fmt.Sprintf("today=%.4f tomorrow=%.4f trust=%.4f filling=%.4f",
		r.Score4Today, r.Score4Tomorrow, r.TrustIndex, r.FillingRate)
}

// Strategy selects how a missing item value is imputed.
type Strategy int

const (
	// StrategyNearestMean picks the category score closest to the history mean.
	StrategyNearestMean Strategy = iota
	// StrategyPrior draws from the catalog's prior distribution.
	StrategyPrior
	// StrategyMean is the raw history mean. It is not necessarily a valid
	// category score and is only used as an intermediate.
	StrategyMean
	// StrategyMode picks the most frequent historical value.
	StrategyMode
)

func (s Strategy) String() string {
	switch s {
	case StrategyNearestMean:
		return "nearest_mean"
	case StrategyPrior:
		return "prior"
	case StrategyMean:
		return "mean"
	case StrategyMode:
		return "mode"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name onto a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "nearest_mean", "nearestmean", "mean_nearest":
		return StrategyNearestMean, nil
	case "prior", "prob":
		return StrategyPrior, nil
	case "mean":
		return StrategyMean, nil
	case "mode":
		return StrategyMode, nil
	default:
		return 0, &ConfigError{Field: "imputation", Reason: fmt.Sprintf("unknown imputation strategy %q", name)}
	}
}

// TrustMode selects how the trust index folds in past filling rates.
type TrustMode int

const (
	// TrustArithmetic averages today's filling rate with the sum of past
	// filling rates over H+1 slots.
	TrustArithmetic TrustMode = iota
	// TrustGeometric multiplies today's filling rate by every past one.
	TrustGeometric
)

func (m TrustMode) String() string {
	switch m {
	case TrustArithmetic:
		return "arithmetic"
	case TrustGeometric:
		return "geometric"
	default:
		return fmt.Sprintf("TrustMode(%d)", int(m))
	}
}

// ParseTrustMode maps a configuration name onto a TrustMode.
func ParseTrustMode(name string) (TrustMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "arithmetic", "ari":
		return TrustArithmetic, nil
	case "geometric", "geo":
		return TrustGeometric, nil
	default:
		return 0, &ConfigError{Field: "trust_mode", Reason: fmt.Sprintf("unknown trust mode %q", name)}
	}
}
