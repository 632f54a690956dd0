package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"market-analyzer/internal/model"
	"market-analyzer/internal/strategy"
)

var (
	// ErrInsufficientData is returned when fewer than two bars are given,
	// leaving no actionable bar after the warm-up bar.
	ErrInsufficientData = errors.New("insufficient data: need at least 2 bars")

	// ErrSignalMismatch is returned when signals are not index-aligned with the series.
	ErrSignalMismatch = errors.New("signal count does not match bar count")
)

// StepResult is the outcome of applying one bar to a State.
type StepResult struct {
	State State
	Trade *model.Trade // nil when nothing executed on this bar

	// Closed is true when the bar exited a position; Return then holds the
	// round trip's fractional return.
	Closed bool
	Return float64
}

// Step applies one bar and its signal to the book. At most one of
// {risk exit, entry, signal exit} executes, in that priority order.
func Step(s State, bar model.Bar, sig strategy.Signal, limits RiskLimits) StepResult {
	price := bar.Close

	// 1. Protective exits pre-empt any signal on this bar.
	if action, pl, ok := limits.CheckExit(s, price); ok {
		trade := model.Trade{Action: action, TS: bar.TS, Price: price, Qty: s.Position}
		return StepResult{State: s.liquidate(price), Trade: &trade, Closed: true, Return: pl}
	}

	switch {
	// 2. Entry: buy as many whole shares as cash allows.
	case sig == strategy.Buy && s.Flat():
		qty := int64(s.Cash / price)
		if qty <= 0 {
			return StepResult{State: s}
		}
		next := State{
			Cash:       s.Cash - float64(qty)*price,
			Position:   qty,
			EntryPrice: price,
		}
		trade := model.Trade{Action: model.ActionBuy, TS: bar.TS, Price: price, Qty: qty}
		return StepResult{State: next, Trade: &trade}

	// 3. Signal exit.
	case sig == strategy.Sell && !s.Flat():
		ret := (price - s.EntryPrice) / s.EntryPrice
		trade := model.Trade{Action: model.ActionSell, TS: bar.TS, Price: price, Qty: s.Position}
		return StepResult{State: s.liquidate(price), Trade: &trade, Closed: true, Return: ret}
	}

	return StepResult{State: s}
}

// Outcome is everything a finished simulation produced.
type Outcome struct {
	Final     State         `json:"final"`
	Trades    []model.Trade `json:"trades"`
	Returns   []float64     `json:"returns"` // one per closed round trip
	Equity    []float64     `json:"equity"`  // mark-to-market value per bar
	LastClose float64       `json:"last_close"`
}

// Run simulates the series with the given signals. Bar 0 is never acted on.
func Run(series []model.Bar, signals []strategy.Signal, limits RiskLimits) (*Outcome, error) {
	return RunContext(context.Background(), series, signals, limits)
}

// RunContext is Run with cancellation checked between bars. A cancelled run
// returns the context error and no outcome.
func RunContext(ctx context.Context, series []model.Bar, signals []strategy.Signal, limits RiskLimits) (*Outcome, error) {
	if len(series) < 2 {
		return nil, ErrInsufficientData
	}
	if len(signals) != len(series) {
		return nil, fmt.Errorf("%w: %d signals for %d bars", ErrSignalMismatch, len(signals), len(series))
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	state := NewState(limits.InitialCash)
	out := &Outcome{
		Trades:    make([]model.Trade, 0, 16),
		Returns:   make([]float64, 0, 8),
		Equity:    make([]float64, len(series)),
		LastClose: series[len(series)-1].Close,
	}
	out.Equity[0] = state.Value(series[0].Close)

	for i := 1; i < len(series); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := Step(state, series[i], signals[i], limits)
		state = res.State
		if res.Trade != nil {
			out.Trades = append(out.Trades, *res.Trade)
			slog.Debug("trade",
				slog.String("action", string(res.Trade.Action)),
				slog.Time("ts", res.Trade.TS),
				slog.Float64("price", res.Trade.Price),
				slog.Int64("qty", res.Trade.Qty),
			)
		}
		if res.Closed {
			out.Returns = append(out.Returns, res.Return)
		}
		out.Equity[i] = state.Value(series[i].Close)
	}

	out.Final = state
	return out, nil
}

// Result reduces the outcome into the summary metrics.
func (o *Outcome) Result(initialCash float64) model.BacktestResult {
	r := Summarize(o.Final.Cash, o.Final.Position, o.LastClose, initialCash, o.Returns, o.Trades)
	r.MaxDrawdownPercent = MaxDrawdownPercent(o.Equity)
	return r
}
