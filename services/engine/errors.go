package engine

// Error taxonomy. Data and pivot errors abort the affected symbol/day unit
// only; config errors abort before any unit runs. "No entry this bar" is a
// normal return value everywhere, never an error.

import (
	"errors"
	"fmt"
)

// ErrInsufficientHistory reports a lookback window that cannot be satisfied
// yet. Callers treat the affected bar as non-qualifying (a breakout is never
// MOMENTUM on ambiguous data) instead of failing the run.
var ErrInsufficientHistory = errors.New("insufficient history for lookback window")

// DataGapError reports a missing or out-of-order bar mid-stream.
type DataGapError struct {
	Symbol     string
	Index      int
	PrevTsMs   int64
	TsMs       int64
	IntervalMs int64
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap for %s at bar %d: ts %d follows %d, expected step %dms",
		e.Symbol, e.Index, e.TsMs, e.PrevTsMs, e.IntervalMs)
}

// ConfigError reports a missing or out-of-range threshold. Raised by
// Config.Validate before any symbol is processed; there are no silent
// fallback defaults.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// InvalidPivotError reports a scanner pivot record with non-finite or
// sign-inconsistent prices.
type InvalidPivotError struct {
	Symbol string
	Reason string
}

func (e *InvalidPivotError) Error() string {
	return fmt.Sprintf("invalid pivot record for %s: %s", e.Symbol, e.Reason)
}

// UnitFailure is the structured per-unit failure record collected by the
// batch runner. The batch continues past failed units.
type UnitFailure struct {
	Symbol string `json:"symbol"`
	Day    string `json:"day"`
	Err    string `json:"error"`
}
