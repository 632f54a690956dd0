package model

import "encoding/json"

// BacktestResult is the summary of one backtest run. It is produced once
// and never mutated afterwards.
type BacktestResult struct {
	ROIPercent     float64 `json:"roi_percent"`
	WinRatePercent float64 `json:"win_rate_percent"`
	TradeCount     int     `json:"trade_count"` // closed round trips only
	Trades         []Trade `json:"trades"`

	// Derived figures reported alongside the headline metrics.
	FinalValue         float64 `json:"final_value"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	OpenPosition       bool    `json:"open_position"`
}

// JSON returns the JSON-encoded result.
func (r *BacktestResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
