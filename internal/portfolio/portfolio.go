// Package portfolio simulates a single all-in/all-out position over a bar
// series and reduces the resulting trade log into summary metrics.
//
// The simulation is an explicit fold: Step is a pure transition from one
// State to the next, and Run applies it across the series in order.
package portfolio

// State is the cash/position book for one run. It is owned exclusively by
// the run that created it.
type State struct {
	Cash       float64 `json:"cash"`
	Position   int64   `json:"position"`    // shares held, never negative
	EntryPrice float64 `json:"entry_price"` // valid only while Position > 0
}

// NewState creates a flat book holding only cash.
func NewState(cash float64) State {
	return State{Cash: cash}
}

// Flat reports whether no shares are held.
func (s State) Flat() bool { return s.Position == 0 }

// Value returns the mark-to-market value at the given price.
func (s State) Value(price float64) float64 {
	return s.Cash + float64(s.Position)*price
}

// UnrealizedPnL returns the open position's gain at price, or 0 when flat.
func (s State) UnrealizedPnL(price float64) float64 {
	if s.Flat() {
		return 0
	}
	return (price - s.EntryPrice) * float64(s.Position)
}

// liquidate sells the whole position at price and returns the new state.
func (s State) liquidate(price float64) State {
	return State{Cash: s.Cash + float64(s.Position)*price}
}
