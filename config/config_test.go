package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/portfolio"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, indicator.DefaultConfig(), cfg.Indicators())
	assert.Equal(t, portfolio.DefaultRiskLimits(), cfg.Risk())
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, 4, cfg.PlanWorkers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FAST_WINDOW", "5")
	t.Setenv("SLOW_WINDOW", "15")
	t.Setenv("STOP_LOSS_PCT", "0.02")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Indicators().Fast)
	assert.Equal(t, 15, cfg.Indicators().Slow)
	assert.Equal(t, 0.02, cfg.Risk().StopLossPct)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("FAST_WINDOW", "twenty")
	_, err := Load()
	assert.Error(t, err)
}

func TestBacktestDefaults_Validates(t *testing.T) {
	cfg := &Config{FastWindow: 0, SlowWindow: 50, TrendWindow: 100, RSIWindow: 14, InitialCash: 1000}
	_, _, err := cfg.BacktestDefaults()
	assert.True(t, errors.Is(err, indicator.ErrInvalidWindow))

	cfg = &Config{FastWindow: 20, SlowWindow: 50, TrendWindow: 100, RSIWindow: 14, InitialCash: -1}
	_, _, err = cfg.BacktestDefaults()
	assert.True(t, errors.Is(err, portfolio.ErrInvalidRiskLimits))
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		c := &Config{LogLevel: in}
		assert.Equal(t, want, c.SlogLevel(), "level %q", in)
	}
}

func TestDefaultTickers(t *testing.T) {
	assert.Len(t, DefaultTickers, 50)
	assert.Contains(t, DefaultTickers, "AAPL")
	assert.Contains(t, DefaultTickers, "RELIANCE.NS")
}
