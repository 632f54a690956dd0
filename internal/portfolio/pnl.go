package portfolio

import (
	"math"

	"github.com/shopspring/decimal"

	"market-analyzer/internal/model"
)

// Summarize reduces the final book and the closed-trade returns into a
// BacktestResult. Only closed round trips count toward TradeCount and the
// win rate; an open position contributes to the final value only.
func Summarize(finalCash float64, finalPosition int64, lastClose, initialCash float64, returns []float64, trades []model.Trade) model.BacktestResult {
	finalValue := finalCash + float64(finalPosition)*lastClose

	roi := 0.0
	if initialCash != 0 {
		roi = (finalValue - initialCash) / initialCash * 100
	}

	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(returns) > 0 {
		winRate = float64(wins) / float64(len(returns)) * 100
	}

	tradeLog := make([]model.Trade, len(trades))
	copy(tradeLog, trades)

	return model.BacktestResult{
		ROIPercent:     round2(roi),
		WinRatePercent: round2(winRate),
		TradeCount:     len(returns),
		Trades:         tradeLog,
		FinalValue:     round2(finalValue),
		OpenPosition:   finalPosition > 0,
	}
}

// MaxDrawdownPercent returns the largest peak-to-trough decline of an equity
// curve, in percent of the peak.
func MaxDrawdownPercent(equity []float64) float64 {
	peak, maxDD := 0.0, 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return round2(maxDD)
}

// round2 rounds half away from zero to two decimal places. NaN and Inf map to 0.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
