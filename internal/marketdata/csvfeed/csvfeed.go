// Package csvfeed reads daily close series from CSV files and writes trade
// logs back out.
//
// Two layouts are accepted: a minimal "date,close" file and Yahoo-style
// exports ("Date,Open,High,Low,Close,Adj Close,Volume"). Columns are found
// by header name, case-insensitively; rows whose close is empty or "null"
// are skipped.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"market-analyzer/internal/model"
	sqlitestore "market-analyzer/internal/store/sqlite"
)

// ErrBadHeader is returned when the date or close column cannot be found.
var ErrBadHeader = errors.New("csv header needs a date and a close column")

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"01/02/2006",
}

type columns struct {
	date, close int
}

func findColumns(header []string) (columns, error) {
	cols := columns{date: -1, close: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "date", "datetime", "timestamp", "ts":
			if cols.date < 0 {
				cols.date = i
			}
		case "close":
			cols.close = i
		}
	}
	if cols.date < 0 || cols.close < 0 {
		return cols, fmt.Errorf("%w: %v", ErrBadHeader, header)
	}
	return cols, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// rows walks the data rows, calling fn for every usable bar.
func rows(r io.Reader, fn func(line int, b model.Bar) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols, err := findColumns(header)
	if err != nil {
		return err
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) <= cols.date || len(rec) <= cols.close {
			return fmt.Errorf("line %d: %d fields", line, len(rec))
		}

		raw := strings.TrimSpace(rec[cols.close])
		if raw == "" || strings.EqualFold(raw, "null") {
			continue
		}
		ts, err := parseDate(rec[cols.date])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		closePx, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("line %d: close %q: %w", line, raw, err)
		}
		if err := fn(line, model.Bar{TS: ts, Close: closePx}); err != nil {
			return err
		}
	}
}

// Parse reads a whole CSV into a series sorted by date. Duplicate dates
// keep the last row. The result is validated with model.ValidateSeries.
func Parse(r io.Reader) ([]model.Bar, error) {
	byTS := make(map[time.Time]float64)
	err := rows(r, func(_ int, b model.Bar) error {
		byTS[b.TS] = b.Close
		return nil
	})
	if err != nil {
		return nil, err
	}

	bars := make([]model.Bar, 0, len(byTS))
	for ts, c := range byTS {
		bars = append(bars, model.Bar{TS: ts, Close: c})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })

	if err := model.ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Feed streams rows into out for symbol, in file order, for a
// sqlite Writer.Run consumer. It does not close out. The count of bars
// sent is returned.
func Feed(ctx context.Context, r io.Reader, symbol string, out chan<- sqlitestore.SymbolBar) (int, error) {
	sent := 0
	err := rows(r, func(_ int, b model.Bar) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- sqlitestore.SymbolBar{Symbol: symbol, Bar: b}:
			sent++
			return nil
		}
	})
	if err != nil {
		log.Printf("[csvfeed] %s: stopped after %d bars: %v", symbol, sent, err)
	}
	return sent, err
}

// WriteTrades writes a trade log as CSV.
func WriteTrades(w io.Writer, symbol string, trades []model.Trade) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"symbol", "action", "date", "price", "qty", "notional"})
	for _, t := range trades {
		_ = cw.Write([]string{
			symbol,
			string(t.Action),
			t.TS.Format("2006-01-02"),
			formatF(t.Price),
			strconv.FormatInt(t.Qty, 10),
			formatF(t.Notional()),
		})
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
