package strategy

import (
	"log/slog"

	"market-analyzer/internal/indicator"
)

// SMACrossover implements a simple SMA crossover strategy.
//
// Buy signal: fast SMA crosses above slow SMA (golden cross)
// Sell signal: fast SMA crosses below slow SMA (death cross)
//
// The trend SMA and RSI columns are not consulted.
type SMACrossover struct {
	name string
}

// NewSMACrossover creates the crossover strategy.
func NewSMACrossover() *SMACrossover {
	return &SMACrossover{name: "SMA_Crossover"}
}

func (s *SMACrossover) Name() string {
	return s.name
}

// Apply compares SMAFast and SMASlow on consecutive bars. Index 0 has no
// previous bar and is always None.
func (s *SMACrossover) Apply(frame *indicator.Frame) []Signal {
	if frame == nil {
		return nil
	}
	n := frame.Len()
	signals := make([]Signal, n)
	fast, slow := frame.SMAFast, frame.SMASlow

	for i := 1; i < n; i++ {
		// Golden cross: fast crosses above slow
		if fast[i] > slow[i] && fast[i-1] <= slow[i-1] {
			signals[i] = Buy
			continue
		}
		// Death cross: fast crosses below slow
		if fast[i] < slow[i] && fast[i-1] >= slow[i-1] {
			signals[i] = Sell
		}
	}

	buys, sells := Count(signals)
	slog.Debug("signals generated",
		slog.String("strategy", s.name),
		slog.Int("bars", n),
		slog.Int("buys", buys),
		slog.Int("sells", sells),
	)
	return signals
}
