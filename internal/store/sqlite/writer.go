package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"market-analyzer/internal/model"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/market.db"
}

// SymbolBar is a bar tagged with its instrument, as streamed by importers.
type SymbolBar struct {
	Symbol string
	model.Bar
}

// Writer inserts bars in batched transactions.
type Writer struct {
	db *sql.DB

	// OnCommit is called after each successful batch commit (optional).
	OnCommit func(rows int, d time.Duration)
}

// New opens the database at cfg.DBPath and returns a Writer on it.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &Writer{db: db}, nil
}

// NewWriter wraps an already opened database.
func NewWriter(db *sql.DB) *Writer { return &Writer{db: db} }

// DB returns the underlying sql.DB for health checks and sharing.
func (w *Writer) DB() *sql.DB { return w.db }

// InsertBars upserts bars for one symbol in a single transaction.
func (w *Writer) InsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	batch := make([]SymbolBar, len(bars))
	for i, b := range bars {
		batch[i] = SymbolBar{Symbol: symbol, Bar: b}
	}
	return w.insertBatch(ctx, batch)
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed, and returns the number
// of rows committed and the first commit error.
func (w *Writer) Run(ctx context.Context, barCh <-chan SymbolBar) (int, error) {
	batch := make([]SymbolBar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	committed := 0
	var firstErr error

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Flushes after cancellation still need to land.
		if err := w.insertBatch(context.WithoutCancel(ctx), batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			committed += len(batch)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return committed, firstErr

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return committed, firstErr
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch upserts a batch of bars in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, bars []SymbolBar) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if !(b.Close > 0) {
			tx.Rollback()
			return fmt.Errorf("%w: %s at %s has close %v", model.ErrMalformedSeries, b.Symbol, b.TS.Format(time.RFC3339), b.Close)
		}
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.TS.Unix(), b.Close); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if w.OnCommit != nil {
		w.OnCommit(len(bars), time.Since(start))
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
