package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"market-analyzer/internal/model"
)

// Reader provides read access to stored bars.
type Reader struct {
	db *sql.DB
}

// NewReader wraps an opened database.
func NewReader(db *sql.DB) *Reader { return &Reader{db: db} }

// ReadBars returns a symbol's bars with from <= ts < to, ordered by
// timestamp ascending. A zero from or to leaves that side unbounded.
func (r *Reader) ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, close
		FROM bars
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SymbolInfo summarizes the stored history of one symbol.
type SymbolInfo struct {
	Symbol string    `json:"symbol"`
	Bars   int       `json:"bars"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

// Symbols lists every stored symbol with its bar count and span.
func (r *Reader) Symbols(ctx context.Context) ([]SymbolInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, COUNT(*), MIN(ts), MAX(ts)
		FROM bars
		GROUP BY symbol
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolInfo
	for rows.Next() {
		var s SymbolInfo
		var first, last int64
		if err := rows.Scan(&s.Symbol, &s.Bars, &first, &last); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		s.First = time.Unix(first, 0).UTC()
		s.Last = time.Unix(last, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastTimestamp returns the newest stored bar time for symbol, or the zero
// time when none exist.
func (r *Reader) LastTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ?`, symbol,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
