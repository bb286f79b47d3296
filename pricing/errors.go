/*
errors.go - Error types for the pricing core

PURPOSE:
  The core distinguishes exactly two failure classes:
  1. Configuration errors - a malformed aggregate (missing plan, blank
     line ID). Fatal, surfaced immediately, never retried.
  2. Everything else is NOT an error: missing dates, empty rate tables,
     zero coupons and zero points resolve to neutral defaults.

USAGE:
  if errors.Is(err, pricing.ErrConfiguration) { ... }
*/
package pricing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration is returned when an aggregate is malformed.
	ErrConfiguration = errors.New("invalid billing configuration")

	// ErrLineNotFound is returned when a cancellation targets a line ID
	// the aggregate does not contain.
	ErrLineNotFound = errors.New("line item not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ConfigurationError pinpoints the malformed part of an aggregate.
type ConfigurationError struct {
	AggregateID AggregateID
	LineID      LineID
	Reason      string
}

func (e *ConfigurationError) Error() string {
	if e.LineID != "" {
		return fmt.Sprintf("aggregate %s line %s: %s", e.AggregateID, e.LineID, e.Reason)
	}
	return fmt.Sprintf("aggregate %s: %s", e.AggregateID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// IsConfiguration reports whether err is a fatal configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
