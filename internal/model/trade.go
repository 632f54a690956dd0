package model

import (
	"fmt"
	"time"
)

// TradeAction tags what kind of fill a Trade records.
type TradeAction string

const (
	ActionBuy            TradeAction = "BUY"
	ActionSell           TradeAction = "SELL"
	ActionStopLossExit   TradeAction = "STOP_LOSS_EXIT"
	ActionTakeProfitExit TradeAction = "TAKE_PROFIT_EXIT"
)

// IsExit reports whether the action closes a position.
func (a TradeAction) IsExit() bool {
	switch a {
	case ActionSell, ActionStopLossExit, ActionTakeProfitExit:
		return true
	default:
		return false
	}
}

// Valid reports whether a is one of the known actions.
func (a TradeAction) Valid() bool {
	return a == ActionBuy || a.IsExit()
}

// Trade is an immutable record of a simulated fill. Qty is always > 0.
type Trade struct {
	Action TradeAction `json:"action"`
	TS     time.Time   `json:"ts"`
	Price  float64     `json:"price"`
	Qty    int64       `json:"qty"`
}

// Notional returns Price * Qty.
func (t Trade) Notional() float64 {
	return t.Price * float64(t.Qty)
}

// String renders the trade the way the trade history list shows it.
func (t Trade) String() string {
	return fmt.Sprintf("%s %d shares @ %.2f on %s", t.Action, t.Qty, t.Price, t.TS.Format("2006-01-02"))
}
