package strategy

import (
	"testing"
	"time"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
)

func barsFrom(closes []float64) []model.Bar {
	t0 := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{TS: t0.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func frameOf(fast, slow []float64) *indicator.Frame {
	return &indicator.Frame{
		Close:   make([]float64, len(fast)),
		SMAFast: fast,
		SMASlow: slow,
	}
}

func TestSMACrossover_GoldenAndDeathCross(t *testing.T) {
	fast := []float64{9, 9, 11, 12, 10, 8, 8}
	slow := []float64{10, 10, 10, 10, 10, 10, 10}
	// i=2: 11>10 and 9<=10 → Buy
	// i=4: 10==10, not a cross (needs strict <)
	// i=5: 8<10 and prev 10>=10 → Sell
	want := []Signal{None, None, Buy, None, None, Sell, None}

	got := NewSMACrossover().Apply(frameOf(fast, slow))
	if len(got) != len(want) {
		t.Fatalf("expected %d signals, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bar %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSMACrossover_TouchThenCross(t *testing.T) {
	// Equality on the previous bar still counts as "from below".
	fast := []float64{9, 10, 11}
	slow := []float64{10, 10, 10}
	got := NewSMACrossover().Apply(frameOf(fast, slow))
	if got[1] != None || got[2] != Buy {
		t.Fatalf("got %v", got)
	}
}

func TestSMACrossover_FirstBarAlwaysNone(t *testing.T) {
	got := NewSMACrossover().Apply(frameOf([]float64{12}, []float64{10}))
	if len(got) != 1 || got[0] != None {
		t.Fatalf("single bar: got %v", got)
	}
}

func TestSMACrossover_FlatSeriesNoSignals(t *testing.T) {
	fast := make([]float64, 60)
	slow := make([]float64, 60)
	for i := range fast {
		fast[i], slow[i] = 100, 100
	}
	buys, sells := Count(NewSMACrossover().Apply(frameOf(fast, slow)))
	if buys != 0 || sells != 0 {
		t.Fatalf("flat series produced %d buys and %d sells", buys, sells)
	}
}

func TestSMACrossover_NeverBothAtOnce(t *testing.T) {
	// Oscillating series should alternate buy and sell, never overlapping.
	n := 200
	fast := make([]float64, n)
	slow := make([]float64, n)
	for i := 0; i < n; i++ {
		slow[i] = 100
		if (i/3)%2 == 0 {
			fast[i] = 101
		} else {
			fast[i] = 99
		}
	}
	signals := NewSMACrossover().Apply(frameOf(fast, slow))
	last := None
	for i, s := range signals {
		if s == None {
			continue
		}
		if s == last {
			t.Fatalf("bar %d: repeated %s without opposite cross", i, s)
		}
		last = s
	}
}

func TestSMACrossover_FromComputedFrame(t *testing.T) {
	// Down then up: fast SMA(2) dips below slow SMA(4) at bar 2 and
	// recovers above it at bar 6.
	closes := []float64{100, 98, 96, 94, 92, 94, 98, 104, 110, 116}
	f, err := indicator.Compute(barsFrom(closes), indicator.Config{Fast: 2, Slow: 4, Trend: 6, RSI: 3})
	if err != nil {
		t.Fatal(err)
	}
	signals := NewSMACrossover().Apply(f)
	buys, sells := Count(signals)
	if signals[2] != Sell || signals[6] != Buy {
		t.Errorf("expected sell at 2 and buy at 6, got %v", signals)
	}
	if buys != 1 {
		t.Errorf("expected exactly one buy, got %d (%v)", buys, signals)
	}
	if sells != 1 {
		t.Errorf("expected exactly one sell, got %d (%v)", sells, signals)
	}
}

func TestSMACrossover_FlatFractionalPricesFromComputedFrame(t *testing.T) {
	for _, price := range []float64{100.1, 33.33, 187.37} {
		closes := make([]float64, 120)
		for i := range closes {
			closes[i] = price
		}
		f, err := indicator.Compute(barsFrom(closes), indicator.DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if buys, sells := Count(NewSMACrossover().Apply(f)); buys != 0 || sells != 0 {
			t.Errorf("price %v: got %d buys, %d sells on a flat series", price, buys, sells)
		}
	}
}

func TestSMACrossover_NilFrame(t *testing.T) {
	if got := NewSMACrossover().Apply(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSignal_String(t *testing.T) {
	if Buy.String() != "BUY" || Sell.String() != "SELL" || None.String() != "NONE" {
		t.Fatal("unexpected signal names")
	}
	b, _ := Sell.MarshalText()
	if string(b) != "SELL" {
		t.Fatalf("MarshalText = %s", b)
	}
}
