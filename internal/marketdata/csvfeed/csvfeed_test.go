package csvfeed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"market-analyzer/internal/model"
	sqlitestore "market-analyzer/internal/store/sqlite"
)

const yahoo = `Date,Open,High,Low,Close,Adj Close,Volume
2023-01-04,126.89,128.66,125.08,126.36,125.66,89113600
2023-01-03,130.28,130.90,124.17,125.07,124.38,112117500
2023-01-05,127.13,127.77,124.76,125.02,124.33,80962700
2023-01-06,null,null,null,null,null,null
`

func TestParse_YahooLayout(t *testing.T) {
	bars, err := Parse(strings.NewReader(yahoo))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	want := []float64{125.07, 126.36, 125.02}
	for i, b := range bars {
		if b.Close != want[i] {
			t.Errorf("bar %d close = %v, want %v", i, b.Close, want[i])
		}
	}
	if !bars[0].TS.Equal(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %v", bars[0].TS)
	}
}

func TestParse_MinimalLayoutAndDuplicates(t *testing.T) {
	in := "date,close\n2024-02-01,10\n2024-02-02,11\n2024-02-02,12\n"
	bars, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bars[1].Close != 12 {
		t.Fatalf("got %+v", bars)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"no close column", "date,open\n2024-01-01,1\n", ErrBadHeader},
		{"empty", "", ErrBadHeader},
		{"non-positive close", "date,close\n2024-01-01,0\n", model.ErrMalformedSeries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Parse(strings.NewReader("date,close\nyesterday,1\n")); err == nil {
		t.Error("expected error for bad date")
	}
	if _, err := Parse(strings.NewReader("date,close\n2024-01-01,abc\n")); err == nil {
		t.Error("expected error for bad close")
	}
}

func TestFeed(t *testing.T) {
	out := make(chan sqlitestore.SymbolBar, 10)
	n, err := Feed(context.Background(), strings.NewReader(yahoo), "AAPL", out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(out) != 3 {
		t.Fatalf("sent %d, buffered %d, want 3", n, len(out))
	}
	first := <-out
	if first.Symbol != "AAPL" || first.Close != 126.36 {
		t.Errorf("first = %+v", first)
	}
}

func TestFeed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan sqlitestore.SymbolBar) // unbuffered, never read
	_, err := Feed(ctx, strings.NewReader(yahoo), "AAPL", out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWriteTrades(t *testing.T) {
	ts := time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteTrades(&buf, "AAPL", []model.Trade{
		{Action: model.ActionBuy, TS: ts, Price: 98, Qty: 1020},
		{Action: model.ActionTakeProfitExit, TS: ts.AddDate(0, 0, 2), Price: 110, Qty: 1020},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "symbol,action,date,price,qty,notional\n" +
		"AAPL,BUY,2023-01-09,98,1020,99960\n" +
		"AAPL,TAKE_PROFIT_EXIT,2023-01-11,110,1020,112200\n"
	if buf.String() != want {
		t.Errorf("got\n%s\nwant\n%s", buf.String(), want)
	}
}
