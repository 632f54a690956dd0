package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
	"market-analyzer/internal/portfolio"
)

const planDateLayout = "2006-01-02"

// BarSource loads a symbol's bars in [from, to).
type BarSource interface {
	ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error)
}

// Plan is a batch of runs loaded from YAML:
//
//	workers: 4
//	defaults:
//	  indicators: {fast: 20, slow: 50, trend: 100, rsi: 14}
//	  risk: {initial_cash: 100000, stop_loss_pct: 0.05, take_profit_pct: 0.10}
//	runs:
//	  - symbol: AAPL
//	    from: 2022-01-01
//	    to: 2024-01-01
//	    fast: 10
//	    stop_loss_pct: 0.03
type Plan struct {
	Workers  int        `yaml:"workers"`
	Defaults PlanConfig `yaml:"defaults"`
	Runs     []PlanRun  `yaml:"runs"`
}

// PlanConfig holds the settings shared by every run in a plan. Fields left
// out of the YAML keep the caller's fallback values.
type PlanConfig struct {
	Indicators *indicator.Config `yaml:"indicators"`
	Risk       *PlanRisk         `yaml:"risk"`
}

// PlanRisk is a partial set of risk limits; nil fields are not set.
type PlanRisk struct {
	InitialCash   *float64 `yaml:"initial_cash"`
	StopLossPct   *float64 `yaml:"stop_loss_pct"`
	TakeProfitPct *float64 `yaml:"take_profit_pct"`
}

// Apply merges the defaults onto fallback settings field by field. Zero
// windows and nil risk fields leave the fallback in place.
func (c PlanConfig) Apply(ind indicator.Config, risk portfolio.RiskLimits) (indicator.Config, portfolio.RiskLimits) {
	if w := c.Indicators; w != nil {
		ind = mergeWindows(ind, w.Fast, w.Slow, w.Trend, w.RSI)
	}
	if r := c.Risk; r != nil {
		risk = mergeRisk(risk, r.InitialCash, r.StopLossPct, r.TakeProfitPct)
	}
	return ind, risk
}

func mergeWindows(ind indicator.Config, fast, slow, trend, rsi int) indicator.Config {
	if fast > 0 {
		ind.Fast = fast
	}
	if slow > 0 {
		ind.Slow = slow
	}
	if trend > 0 {
		ind.Trend = trend
	}
	if rsi > 0 {
		ind.RSI = rsi
	}
	return ind
}

func mergeRisk(risk portfolio.RiskLimits, cash, stop, take *float64) portfolio.RiskLimits {
	if cash != nil {
		risk.InitialCash = *cash
	}
	if stop != nil {
		risk.StopLossPct = *stop
	}
	if take != nil {
		risk.TakeProfitPct = *take
	}
	return risk
}

// PlanRun is one entry of a plan. Zero window fields and nil risk fields
// inherit the plan defaults.
type PlanRun struct {
	Symbol string `json:"symbol,omitempty" yaml:"symbol"`
	From   string `json:"from,omitempty" yaml:"from"`
	To     string `json:"to,omitempty" yaml:"to"`

	Fast  int `json:"fast,omitempty" yaml:"fast"`
	Slow  int `json:"slow,omitempty" yaml:"slow"`
	Trend int `json:"trend,omitempty" yaml:"trend"`
	RSI   int `json:"rsi,omitempty" yaml:"rsi"`

	InitialCash   *float64 `json:"initial_cash,omitempty" yaml:"initial_cash"`
	StopLossPct   *float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct"`
	TakeProfitPct *float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct"`
}

// PlanResult pairs a plan entry with its report or error.
type PlanResult struct {
	Run    PlanRun
	Report *Report
	Err    error
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return DecodePlan(f)
}

// DecodePlan parses a YAML plan and checks every entry.
func DecodePlan(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan: empty document")
		}
		return nil, fmt.Errorf("plan: %w", err)
	}
	if len(p.Runs) == 0 {
		return nil, errors.New("plan: no runs")
	}
	for i, run := range p.Runs {
		if run.Symbol == "" {
			return nil, fmt.Errorf("plan: run %d: symbol is required", i)
		}
		if _, _, err := run.Range(); err != nil {
			return nil, fmt.Errorf("plan: run %d (%s): %w", i, run.Symbol, err)
		}
	}
	return &p, nil
}

// Range parses the run's date bounds. An empty bound is left zero.
func (r PlanRun) Range() (from, to time.Time, err error) {
	if r.From != "" {
		if from, err = time.Parse(planDateLayout, r.From); err != nil {
			return from, to, fmt.Errorf("bad from date %q: %w", r.From, err)
		}
	}
	if r.To != "" {
		if to, err = time.Parse(planDateLayout, r.To); err != nil {
			return from, to, fmt.Errorf("bad to date %q: %w", r.To, err)
		}
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return from, to, fmt.Errorf("to %s is not after from %s", r.To, r.From)
	}
	return from, to, nil
}

// Resolve merges the run's overrides onto base settings.
func (r PlanRun) Resolve(ind indicator.Config, risk portfolio.RiskLimits) (indicator.Config, portfolio.RiskLimits) {
	return mergeWindows(ind, r.Fast, r.Slow, r.Trend, r.RSI),
		mergeRisk(risk, r.InitialCash, r.StopLossPct, r.TakeProfitPct)
}

// Execute runs every plan entry with at most workers runs in flight.
// ind and risk are the fallback settings under the plan defaults;
// workers <= 0 uses the plan's own worker count (or 1).
// A failing entry is reported in its PlanResult and does not stop the
// others; only cancellation of ctx aborts the batch.
func (p *Plan) Execute(ctx context.Context, runner *Runner, src BarSource, ind indicator.Config, risk portfolio.RiskLimits, workers int) ([]PlanResult, error) {
	ind, risk = p.Defaults.Apply(ind, risk)
	if workers <= 0 {
		workers = p.Workers
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]PlanResult, len(p.Runs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, run := range p.Runs {
		i, run := i, run
		g.Go(func() error {
			results[i] = PlanResult{Run: run}
			from, to, _ := run.Range()

			bars, err := src.ReadBars(gctx, run.Symbol, from, to)
			if err != nil {
				results[i].Err = fmt.Errorf("load %s: %w", run.Symbol, err)
				return nil
			}
			if len(bars) == 0 {
				results[i].Err = fmt.Errorf("%s: %w", run.Symbol, ErrNoBars)
				return nil
			}

			runInd, runRisk := run.Resolve(ind, risk)
			rep, err := runner.Run(gctx, Request{
				Symbol:     run.Symbol,
				Bars:       bars,
				Indicators: runInd,
				Risk:       runRisk,
			})
			if err != nil {
				if Classify(err) == ClassCancelled {
					return err
				}
				results[i].Err = err
				return nil
			}
			results[i].Report = rep
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("plan finished",
		slog.Int("runs", len(results)),
		slog.Int("failed", failed),
		slog.Int("workers", workers),
	)
	return results, nil
}
