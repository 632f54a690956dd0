// Package indicator provides technical indicator calculations over a close
// price series.
//
// All indicators implement the Indicator interface, receiving prices one at
// a time and producing float64 values. Early values use a shrunk window
// (minimum one observation) instead of being undefined, so every bar of the
// input has a value.
package indicator

import "errors"

var (
	// ErrEmptySeries is returned when Compute is given zero bars.
	ErrEmptySeries = errors.New("empty price series")

	// ErrInvalidWindow is returned when any window size is not positive.
	ErrInvalidWindow = errors.New("invalid indicator window")
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator label (e.g., "SMA_20", "EMA_20").
	Name() string

	// Update feeds the next close price and recalculates.
	Update(price float64)

	// Value returns the current calculated value.
	Value() float64
}
