package backtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
	"market-analyzer/internal/portfolio"
)

const samplePlan = `
workers: 2
defaults:
  indicators: {fast: 2, slow: 4, trend: 4, rsi: 3}
  risk: {initial_cash: 100000, stop_loss_pct: 0.05, take_profit_pct: 0.10}
runs:
  - symbol: VSHAPE
    from: 2023-01-01
    to: 2023-02-01
  - symbol: FLAT
    fast: 3
    stop_loss_pct: 0.02
  - symbol: MISSING
`

type mapSource struct {
	bars map[string][]model.Bar
	err  error
}

func (s mapSource) ReadBars(_ context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Bar
	for _, b := range s.bars[symbol] {
		if !from.IsZero() && b.TS.Before(from) {
			continue
		}
		if !to.IsZero() && !b.TS.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func TestDecodePlan(t *testing.T) {
	p, err := DecodePlan(strings.NewReader(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, 2, p.Workers)
	require.NotNil(t, p.Defaults.Indicators)
	assert.Equal(t, smallWindows, *p.Defaults.Indicators)
	require.Len(t, p.Runs, 3)

	from, to, err := p.Runs[0].Range()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), to)

	ind, risk := p.Runs[1].Resolve(p.Defaults.Apply(indicator.DefaultConfig(), portfolio.DefaultRiskLimits()))
	assert.Equal(t, 3, ind.Fast)
	assert.Equal(t, 4, ind.Slow)
	assert.Equal(t, 0.02, risk.StopLossPct)
	assert.Equal(t, 0.10, risk.TakeProfitPct)
}

func TestPlanConfig_PartialDefaults(t *testing.T) {
	doc := `
defaults:
  indicators: {fast: 10}
  risk: {stop_loss_pct: 0}
runs:
  - symbol: A
`
	p, err := DecodePlan(strings.NewReader(doc))
	require.NoError(t, err)

	ind, risk := p.Defaults.Apply(indicator.DefaultConfig(), portfolio.DefaultRiskLimits())
	assert.Equal(t, indicator.Config{Fast: 10, Slow: 50, Trend: 100, RSI: 14}, ind)
	require.NoError(t, ind.Validate())
	assert.Equal(t, 100000.0, risk.InitialCash)
	assert.Equal(t, 0.0, risk.StopLossPct)
	assert.Equal(t, 0.10, risk.TakeProfitPct)

	ind, risk = PlanConfig{}.Apply(smallWindows, portfolio.DefaultRiskLimits())
	assert.Equal(t, smallWindows, ind)
	assert.Equal(t, portfolio.DefaultRiskLimits(), risk)
}

func TestPlanExecute_PartialDefaultsKeepFallbackWindows(t *testing.T) {
	p, err := DecodePlan(strings.NewReader("defaults:\n  indicators: {fast: 3}\nruns:\n  - symbol: VSHAPE\n"))
	require.NoError(t, err)

	results, err := p.Execute(context.Background(), NewRunner(), mapSource{bars: map[string][]model.Bar{"VSHAPE": vShape()}},
		smallWindows, portfolio.DefaultRiskLimits(), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, indicator.Config{Fast: 3, Slow: smallWindows.Slow, Trend: smallWindows.Trend, RSI: smallWindows.RSI},
		results[0].Report.Indicators)
}

func TestDecodePlan_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"no runs":        `workers: 1`,
		"no symbol":      "runs:\n  - from: 2023-01-01\n",
		"bad date":       "runs:\n  - symbol: A\n    from: 01/02/2023\n",
		"inverted range": "runs:\n  - symbol: A\n    from: 2023-02-01\n    to: 2023-01-01\n",
		"unknown field":  "runs:\n  - symbol: A\n    leverage: 5\n",
	}
	for name, doc := range cases {
		_, err := DecodePlan(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o644))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Len(t, p.Runs, 3)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlanExecute(t *testing.T) {
	p, err := DecodePlan(strings.NewReader(samplePlan))
	require.NoError(t, err)

	src := mapSource{bars: map[string][]model.Bar{
		"VSHAPE": vShape(),
		"FLAT":   flatBars(60, 50),
	}}
	sink := &recordingSink{}
	r := NewRunner(WithSinks(sink))

	results, err := p.Execute(context.Background(), r, src, indicator.DefaultConfig(), portfolio.DefaultRiskLimits(), 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "VSHAPE", results[0].Run.Symbol)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 12.24, results[0].Report.Result.ROIPercent)

	require.NoError(t, results[1].Err)
	assert.Equal(t, 3, results[1].Report.Indicators.Fast)
	assert.Equal(t, 0.02, results[1].Report.Risk.StopLossPct)
	assert.Equal(t, 0, results[1].Report.Result.TradeCount)

	assert.Nil(t, results[2].Report)
	assert.ErrorIs(t, results[2].Err, ErrNoBars)

	assert.Equal(t, 2, sink.count())
}

func TestPlanExecute_SourceError(t *testing.T) {
	p := &Plan{Runs: []PlanRun{{Symbol: "A"}, {Symbol: "B"}}}
	boom := errors.New("db locked")

	results, err := p.Execute(context.Background(), NewRunner(), mapSource{err: boom}, indicator.DefaultConfig(), portfolio.DefaultRiskLimits(), 4)
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, boom)
	}
}

func TestPlanExecute_Cancelled(t *testing.T) {
	p := &Plan{Runs: []PlanRun{{Symbol: "VSHAPE"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, NewRunner(), mapSource{bars: map[string][]model.Bar{"VSHAPE": vShape()}}, smallWindows, portfolio.DefaultRiskLimits(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
