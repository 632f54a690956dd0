package portfolio

import (
	"errors"
	"fmt"
	"math"

	"market-analyzer/internal/model"
)

// ErrInvalidRiskLimits is returned for a non-positive starting balance or
// negative/NaN exit thresholds.
var ErrInvalidRiskLimits = errors.New("invalid risk limits")

// RiskLimits configures the starting balance and the protective exits.
type RiskLimits struct {
	InitialCash   float64 `json:"initial_cash" yaml:"initial_cash"`
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`     // 0.05 = exit at -5%
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"` // 0.10 = exit at +10%
}

// DefaultRiskLimits returns 100000 cash with a 5% stop and a 10% target.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		InitialCash:   100000,
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
	}
}

// Validate checks the limits before a run starts.
func (l RiskLimits) Validate() error {
	if !(l.InitialCash > 0) || math.IsInf(l.InitialCash, 0) {
		return fmt.Errorf("%w: initial cash %v", ErrInvalidRiskLimits, l.InitialCash)
	}
	if !(l.StopLossPct >= 0) || !(l.TakeProfitPct >= 0) {
		return fmt.Errorf("%w: stop loss %v, take profit %v", ErrInvalidRiskLimits, l.StopLossPct, l.TakeProfitPct)
	}
	return nil
}

// CheckExit evaluates the protective exits for an open position at price.
// It returns the exit action, the position's fractional P&L, and whether an
// exit fired. The stop-loss is evaluated first and wins when both
// thresholds are met on the same bar.
func (l RiskLimits) CheckExit(s State, price float64) (model.TradeAction, float64, bool) {
	if s.Flat() || s.EntryPrice == 0 {
		return "", 0, false
	}
	pl := (price - s.EntryPrice) / s.EntryPrice
	if pl <= -l.StopLossPct {
		return model.ActionStopLossExit, pl, true
	}
	if pl >= l.TakeProfitPct {
		return model.ActionTakeProfitExit, pl, true
	}
	return "", pl, false
}
