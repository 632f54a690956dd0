// Package strategy turns indicator frames into discrete trading signals.
//
// A Strategy reads a computed indicator.Frame and emits exactly one Signal
// per bar (Buy, Sell or None). Strategies are stateless between calls.
package strategy

import "market-analyzer/internal/indicator"

// Signal represents the action suggested for one bar.
type Signal int8

const (
	None Signal = 0
	Buy  Signal = 1
	Sell Signal = -1
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NONE"
	}
}

// MarshalText encodes the signal by name for JSON output.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Strategy is the interface that all signal generators must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Apply returns one signal per frame row, index-aligned with the frame.
	Apply(frame *indicator.Frame) []Signal
}

// Count returns how many buy and sell signals a slice contains.
func Count(signals []Signal) (buys, sells int) {
	for _, s := range signals {
		switch s {
		case Buy:
			buys++
		case Sell:
			sells++
		}
	}
	return buys, sells
}
