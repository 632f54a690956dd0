package indicator

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"market-analyzer/internal/model"
)

func makeSeries(closes ...float64) []model.Bar {
	t0 := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{TS: t0.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestCompute_LengthMatchesInput(t *testing.T) {
	for _, n := range []int{1, 2, 19, 20, 21, 150} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 100 + float64(i%7)
		}
		f, err := Compute(makeSeries(closes...), DefaultConfig())
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if f.Len() != n {
			t.Fatalf("n=%d: frame length %d", n, f.Len())
		}
		for _, c := range f.Columns() {
			if len(c.Values) != n {
				t.Errorf("n=%d: column %s has %d values", n, c.Name, len(c.Values))
			}
			for i, v := range c.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("n=%d: column %s[%d] undefined: %v", n, c.Name, i, v)
				}
			}
		}
	}
}

func TestCompute_ConstantSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	f, err := Compute(makeSeries(closes...), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < f.Len(); i++ {
		assertClose(t, "SMA_fast", f.SMAFast[i], 100, 1e-9)
		assertClose(t, "SMA_slow", f.SMASlow[i], 100, 1e-9)
		assertClose(t, "SMA_trend", f.SMATrend[i], 100, 1e-9)
		assertClose(t, "EMA_fast", f.EMAFast[i], 100, 1e-9)
	}
}

func TestCompute_MatchesWindowFunction(t *testing.T) {
	closes := []float64{10, 12, 11, 15, 14, 13, 17, 18, 16, 20, 22, 21}
	cfg := Config{Fast: 3, Slow: 5, Trend: 8, RSI: 4}
	f, err := Compute(makeSeries(closes...), cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := range closes {
		assertClose(t, "fast", f.SMAFast[i], RollingMean(closes, i, 3), 1e-9)
		assertClose(t, "slow", f.SMASlow[i], RollingMean(closes, i, 5), 1e-9)
		assertClose(t, "trend", f.SMATrend[i], RollingMean(closes, i, 8), 1e-9)
	}

	// RSI from the window function over gains/losses
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}
	for i := range closes {
		rs := RollingMean(gains, i, 4) / (RollingMean(losses, i, 4) + 1e-9)
		assertClose(t, "rsi", f.RSI[i], 100-100/(1+rs), 1e-9)
	}
}

func TestCompute_EmptySeries(t *testing.T) {
	_, err := Compute(nil, DefaultConfig())
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestCompute_InvalidWindow(t *testing.T) {
	bad := []Config{
		{Fast: 0, Slow: 50, Trend: 100, RSI: 14},
		{Fast: 20, Slow: -1, Trend: 100, RSI: 14},
		{Fast: 20, Slow: 50, Trend: 0, RSI: 14},
		{Fast: 20, Slow: 50, Trend: 100, RSI: 0},
	}
	for _, cfg := range bad {
		_, err := Compute(makeSeries(1, 2, 3), cfg)
		if !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("config %+v: expected ErrInvalidWindow, got %v", cfg, err)
		}
	}
}

func TestCompute_InvalidWindowCheckedBeforeEmpty(t *testing.T) {
	_, err := Compute(nil, Config{})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestFrame_Columns(t *testing.T) {
	f, err := Compute(makeSeries(1, 2, 3, 4), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"SMA_20", "SMA_50", "SMA_100", "EMA_20", "RSI_14"}
	cols := f.Columns()
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for i, c := range cols {
		if c.Name != want[i] {
			t.Errorf("column %d: name %s, want %s", i, c.Name, want[i])
		}
	}

	rsi, ok := f.Column("RSI_14")
	if !ok || len(rsi) != 4 {
		t.Fatalf("Column(RSI_14) = %v, %v", rsi, ok)
	}
	if _, ok := f.Column("MACD"); ok {
		t.Error("unknown column should not be found")
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	series := makeSeries(5, 6, 7)
	before := append([]model.Bar(nil), series...)
	if _, err := Compute(series, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	for i := range series {
		if series[i] != before[i] {
			t.Fatalf("bar %d mutated", i)
		}
	}
}

func TestCompute_ConstantSeriesFractionalPrice(t *testing.T) {
	for _, price := range []float64{100.1, 33.33, 187.37, 1234.5678, 0.1} {
		closes := make([]float64, 120)
		for i := range closes {
			closes[i] = price
		}
		f, err := Compute(makeSeries(closes...), DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < f.Len(); i++ {
			// Exact equality: crossovers compare these columns directly.
			if f.SMAFast[i] != price || f.SMASlow[i] != price || f.SMATrend[i] != price || f.EMAFast[i] != price {
				t.Fatalf("price %v bar %d: sma %v/%v/%v ema %v", price, i,
					f.SMAFast[i], f.SMASlow[i], f.SMATrend[i], f.EMAFast[i])
			}
			if f.RSI[i] != 0 {
				t.Fatalf("price %v bar %d: RSI %v, want 0", price, i, f.RSI[i])
			}
		}
	}
}

func TestCompute_MatchesRollingMeanOnLongSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 800)
	price := 250.0
	for i := range closes {
		price += math.Round((rng.Float64()-0.5)*400) / 100 // cents
		if price < 1 {
			price = 1
		}
		closes[i] = price
	}
	cfg := DefaultConfig()
	f, err := Compute(makeSeries(closes...), cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := range closes {
		fast, slow := RollingMean(closes, i, cfg.Fast), RollingMean(closes, i, cfg.Slow)
		if f.SMAFast[i] != fast || f.SMASlow[i] != slow {
			t.Fatalf("bar %d: frame %v/%v, window %v/%v", i, f.SMAFast[i], f.SMASlow[i], fast, slow)
		}
		if (f.SMAFast[i] > f.SMASlow[i]) != (fast > slow) {
			t.Fatalf("bar %d: crossover side differs from window function", i)
		}
		if f.SMATrend[i] != RollingMean(closes, i, cfg.Trend) {
			t.Fatalf("bar %d: trend %v differs", i, f.SMATrend[i])
		}
		if f.RSI[i] < 0 || f.RSI[i] > 100 {
			t.Fatalf("bar %d: RSI out of range %v", i, f.RSI[i])
		}
	}
}
