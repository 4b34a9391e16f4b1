package catalog

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every error returned by the catalog and by the
// scoring engine wraps exactly one of these, so callers can branch with
// errors.Is without caring which concrete type carried the detail.
var (
	// ErrDomain marks a value that is not valid for its item, or an item
	// whose category scores cannot be normalized.
	ErrDomain = errors.New("domain error")
	// ErrConfig marks malformed configuration: a bad catalog, an unknown
	// imputation strategy or trust mode, an invalid history length.
	ErrConfig = errors.New("config error")
)

// DomainError describes an item value that is outside the item's valid
// category scores.
type DomainError struct {
	ItemID int
	Value  float64
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("item %d: value %v: %s", e.ItemID, e.Value, e.Reason)
}

func (e *DomainError) Unwrap() error { return ErrDomain }

// ConfigError describes a configuration field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
