package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/metrics"
	"market-analyzer/internal/model"
	"market-analyzer/internal/portfolio"
	"market-analyzer/internal/strategy"
)

// Request is the input to a single run.
type Request struct {
	Symbol     string
	Bars       []model.Bar
	Indicators indicator.Config
	Risk       portfolio.RiskLimits
}

// Sink receives every freshly computed report (journal, publisher, notifier).
// Sink errors are logged and never fail the run.
type Sink interface {
	Record(ctx context.Context, rep *Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rep *Report) error

func (f SinkFunc) Record(ctx context.Context, rep *Report) error { return f(ctx, rep) }

// Cache stores reports by CacheKey.
type Cache interface {
	Get(ctx context.Context, key string) (*Report, bool, error)
	Put(ctx context.Context, key string, rep *Report) error
}

// Runner executes backtests. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	strategy strategy.Strategy
	metrics  *metrics.Metrics
	cache    Cache
	sinks    []Sink

	now   func() time.Time
	newID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithStrategy replaces the default SMA crossover strategy.
func WithStrategy(s strategy.Strategy) Option { return func(r *Runner) { r.strategy = s } }

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithCache serves repeated identical requests from c.
func WithCache(c Cache) Option { return func(r *Runner) { r.cache = c } }

// WithSinks appends report sinks, called in order after each fresh run.
func WithSinks(s ...Sink) Option { return func(r *Runner) { r.sinks = append(r.sinks, s...) } }

// NewRunner creates a Runner with the SMA crossover strategy.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		strategy: strategy.NewSMACrossover(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StrategyName returns the configured strategy's name.
func (r *Runner) StrategyName() string { return r.strategy.Name() }

// Run validates the series, computes indicators, generates signals,
// simulates the position and summarizes the result. The context is checked
// between stages and between bars; a cancelled run returns no report.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	var key string
	if r.cache != nil {
		key = CacheKey(r.strategy.Name(), req)
		if rep, ok, err := r.cache.Get(ctx, key); err != nil {
			slog.Warn("cache lookup failed", slog.String("symbol", req.Symbol), slog.Any("error", err))
		} else if ok {
			if r.metrics != nil {
				r.metrics.CacheHits.Inc()
			}
			rep.Cached = true
			return rep, nil
		} else if r.metrics != nil {
			r.metrics.CacheMisses.Inc()
		}
	}

	runID := r.newID()
	ctx = logger.WithRunID(ctx, runID)
	start := r.now()

	rep, err := r.run(ctx, runID, start, req)
	dur := time.Since(start)

	if err != nil {
		r.metrics.ObserveRun(req.Symbol, Classify(err), dur, len(req.Bars), 0, nil)
		slog.Warn("backtest failed", append(logger.LogWithRun(ctx),
			slog.String("symbol", req.Symbol),
			slog.String("class", Classify(err)),
			slog.Any("error", err),
		)...)
		return nil, err
	}

	rep.DurationMs = float64(dur.Microseconds()) / 1000.0
	r.metrics.ObserveRun(req.Symbol, ClassOK, dur, rep.Bars, rep.Result.ROIPercent, rep.TradeActions())
	slog.Info("backtest finished", append(logger.LogWithRun(ctx),
		slog.String("symbol", rep.Symbol),
		slog.Int("bars", rep.Bars),
		slog.Float64("roi_pct", rep.Result.ROIPercent),
		slog.Float64("win_rate_pct", rep.Result.WinRatePercent),
		slog.Int("trades", rep.Result.TradeCount),
		slog.Float64("duration_ms", rep.DurationMs),
	)...)

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, rep); err != nil {
			slog.Warn("cache store failed", append(logger.LogWithRun(ctx), slog.Any("error", err))...)
		}
	}
	// A finished report is delivered even if the caller has gone away.
	sinkCtx := context.WithoutCancel(ctx)
	for _, s := range r.sinks {
		if err := s.Record(sinkCtx, rep); err != nil {
			slog.Warn("report sink failed", append(logger.LogWithRun(ctx), slog.Any("error", err))...)
		}
	}
	return rep, nil
}

func (r *Runner) run(ctx context.Context, runID string, start time.Time, req Request) (*Report, error) {
	if err := model.ValidateSeries(req.Bars); err != nil {
		return nil, err
	}
	if err := req.Risk.Validate(); err != nil {
		return nil, err
	}

	frame, err := indicator.Compute(req.Bars, req.Indicators)
	if err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals := r.strategy.Apply(frame)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := portfolio.RunContext(ctx, req.Bars, signals, req.Risk)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", req.Symbol, err)
	}

	return &Report{
		RunID:      runID,
		Symbol:     req.Symbol,
		Strategy:   r.strategy.Name(),
		Indicators: req.Indicators,
		Risk:       req.Risk,
		From:       req.Bars[0].TS,
		To:         req.Bars[len(req.Bars)-1].TS,
		Bars:       len(req.Bars),
		Result:     out.Result(req.Risk.InitialCash),
		StartedAt:  start.UTC(),
	}, nil
}
