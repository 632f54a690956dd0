// Package backtest composes the indicator, signal, simulation and metrics
// stages into a single run and fans finished reports out to sinks.
package backtest

import (
	"encoding/json"
	"time"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
	"market-analyzer/internal/portfolio"
)

// Report is one finished run: its identity, inputs and result.
type Report struct {
	RunID      string               `json:"run_id"`
	Symbol     string               `json:"symbol"`
	Strategy   string               `json:"strategy"`
	Indicators indicator.Config     `json:"indicators"`
	Risk       portfolio.RiskLimits `json:"risk"`
	From       time.Time            `json:"from"`
	To         time.Time            `json:"to"`
	Bars       int                  `json:"bars"`
	Result     model.BacktestResult `json:"result"`
	StartedAt  time.Time            `json:"started_at"`
	DurationMs float64              `json:"duration_ms"`
	Cached     bool                 `json:"cached,omitempty"`
}

// JSON returns the report as JSON bytes.
func (r *Report) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// TradeActions lists the action of every trade in order.
func (r *Report) TradeActions() []string {
	out := make([]string, len(r.Result.Trades))
	for i, t := range r.Result.Trades {
		out[i] = string(t.Action)
	}
	return out
}
