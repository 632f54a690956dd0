package indicator

import (
	"fmt"
	"strconv"
	"time"

	"market-analyzer/internal/model"
)

// Reference bands drawn with the RSI overlay.
const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)

// Config specifies the window sizes for one Compute call.
type Config struct {
	Fast  int `json:"fast" yaml:"fast"`
	Slow  int `json:"slow" yaml:"slow"`
	Trend int `json:"trend" yaml:"trend"`
	RSI   int `json:"rsi" yaml:"rsi"`
}

// DefaultConfig returns the 20/50/100 SMA, EMA 20 and RSI 14 setup.
func DefaultConfig() Config {
	return Config{Fast: 20, Slow: 50, Trend: 100, RSI: 14}
}

// Validate returns ErrInvalidWindow if any window is not positive.
func (c Config) Validate() error {
	for _, w := range []struct {
		name string
		n    int
	}{{"fast", c.Fast}, {"slow", c.Slow}, {"trend", c.Trend}, {"rsi", c.RSI}} {
		if w.n <= 0 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidWindow, w.name, w.n)
		}
	}
	return nil
}

// Frame holds indicator columns index-aligned with the input series.
type Frame struct {
	Config Config      `json:"config"`
	TS     []time.Time `json:"ts"`
	Close  []float64   `json:"close"`

	SMAFast  []float64 `json:"sma_fast"`
	SMASlow  []float64 `json:"sma_slow"`
	SMATrend []float64 `json:"sma_trend"`
	EMAFast  []float64 `json:"ema_fast"`
	RSI      []float64 `json:"rsi"`
}

// Column is a labeled indicator series, e.g. "SMA_20".
type Column struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Len returns the number of bars in the frame.
func (f *Frame) Len() int { return len(f.Close) }

// Columns returns the indicator columns labeled by type and period.
func (f *Frame) Columns() []Column {
	return []Column{
		{Name: "SMA_" + strconv.Itoa(f.Config.Fast), Values: f.SMAFast},
		{Name: "SMA_" + strconv.Itoa(f.Config.Slow), Values: f.SMASlow},
		{Name: "SMA_" + strconv.Itoa(f.Config.Trend), Values: f.SMATrend},
		{Name: "EMA_" + strconv.Itoa(f.Config.Fast), Values: f.EMAFast},
		{Name: "RSI_" + strconv.Itoa(f.Config.RSI), Values: f.RSI},
	}
}

// Column looks up a column by label. When two columns share a label
// (fast == slow), the first one wins.
func (f *Frame) Column(name string) ([]float64, bool) {
	for _, c := range f.Columns() {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}

// Compute runs every configured indicator over the series in a single pass.
// The result has exactly len(series) entries per column.
func Compute(series []model.Bar, cfg Config) (*Frame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}

	n := len(series)
	f := &Frame{
		Config:   cfg,
		TS:       make([]time.Time, n),
		Close:    make([]float64, n),
		SMAFast:  make([]float64, n),
		SMASlow:  make([]float64, n),
		SMATrend: make([]float64, n),
		EMAFast:  make([]float64, n),
		RSI:      make([]float64, n),
	}

	// Order matches the destination columns below.
	inds := []Indicator{
		NewSMA(cfg.Fast),
		NewSMA(cfg.Slow),
		NewSMA(cfg.Trend),
		NewEMA(cfg.Fast),
		NewRSI(cfg.RSI),
	}
	cols := [][]float64{f.SMAFast, f.SMASlow, f.SMATrend, f.EMAFast, f.RSI}

	for i, bar := range series {
		f.TS[i] = bar.TS
		f.Close[i] = bar.Close
		for j, ind := range inds {
			ind.Update(bar.Close)
			cols[j][i] = ind.Value()
		}
	}
	return f, nil
}
