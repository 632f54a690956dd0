package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"market-analyzer/internal/backtest"
	"market-analyzer/internal/model"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Journal persists finished backtest reports and their trade logs.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps an opened database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record implements backtest.Sink.
func (j *Journal) Record(ctx context.Context, rep *backtest.Report) error {
	return j.SaveRun(ctx, rep)
}

// SaveRun writes the report and its trades in one transaction.
func (j *Journal) SaveRun(ctx context.Context, rep *backtest.Report) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}

	res := rep.Result
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, symbol, strategy, fast, slow, trend, rsi,
			initial_cash, stop_loss_pct, take_profit_pct,
			from_ts, to_ts, bars,
			roi_pct, win_rate_pct, trade_count, final_value, max_drawdown, open_position,
			started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Symbol, rep.Strategy,
		rep.Indicators.Fast, rep.Indicators.Slow, rep.Indicators.Trend, rep.Indicators.RSI,
		rep.Risk.InitialCash, rep.Risk.StopLossPct, rep.Risk.TakeProfitPct,
		rep.From.Unix(), rep.To.Unix(), rep.Bars,
		res.ROIPercent, res.WinRatePercent, res.TradeCount, res.FinalValue, res.MaxDrawdownPercent, res.OpenPosition,
		rep.StartedAt.UnixMilli(), rep.DurationMs,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("journal insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_trades WHERE run_id = ?`, rep.RunID); err != nil {
		tx.Rollback()
		return fmt.Errorf("journal clear trades: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (run_id, seq, action, ts, price, qty)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, t := range res.Trades {
		if _, err := stmt.ExecContext(ctx, rep.RunID, i, string(t.Action), t.TS.Unix(), t.Price, t.Qty); err != nil {
			tx.Rollback()
			return fmt.Errorf("journal insert trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	log.Printf("[journal] saved run %s (%s, %d trades)", rep.RunID, rep.Symbol, len(res.Trades))
	return nil
}

// RunSummary is a journal row without its trade log.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Symbol         string    `json:"symbol"`
	Strategy       string    `json:"strategy"`
	Bars           int       `json:"bars"`
	ROIPercent     float64   `json:"roi_pct"`
	WinRatePercent float64   `json:"win_rate_pct"`
	TradeCount     int       `json:"trade_count"`
	StartedAt      time.Time `json:"started_at"`
}

// ListRuns returns up to limit runs, newest first. An empty symbol lists all.
func (j *Journal) ListRuns(ctx context.Context, symbol string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, symbol, strategy, bars, roi_pct, win_rate_pct, trade_count, started_at
		FROM runs
		WHERE (? = '' OR symbol = ?)
		ORDER BY started_at DESC, run_id
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()

	out := make([]RunSummary, 0, limit)
	for rows.Next() {
		var s RunSummary
		var started int64
		if err := rows.Scan(&s.RunID, &s.Symbol, &s.Strategy, &s.Bars, &s.ROIPercent,
			&s.WinRatePercent, &s.TradeCount, &started); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		s.StartedAt = time.UnixMilli(started).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRun loads a full report, trades included.
func (j *Journal) GetRun(ctx context.Context, runID string) (*backtest.Report, error) {
	var rep backtest.Report
	var from, to, started int64
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, symbol, strategy, fast, slow, trend, rsi,
			initial_cash, stop_loss_pct, take_profit_pct,
			from_ts, to_ts, bars,
			roi_pct, win_rate_pct, trade_count, final_value, max_drawdown, open_position,
			started_at, duration_ms
		FROM runs WHERE run_id = ?`, runID,
	).Scan(
		&rep.RunID, &rep.Symbol, &rep.Strategy,
		&rep.Indicators.Fast, &rep.Indicators.Slow, &rep.Indicators.Trend, &rep.Indicators.RSI,
		&rep.Risk.InitialCash, &rep.Risk.StopLossPct, &rep.Risk.TakeProfitPct,
		&from, &to, &rep.Bars,
		&rep.Result.ROIPercent, &rep.Result.WinRatePercent, &rep.Result.TradeCount,
		&rep.Result.FinalValue, &rep.Result.MaxDrawdownPercent, &rep.Result.OpenPosition,
		&started, &rep.DurationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("journal get run: %w", err)
	}
	rep.From = time.Unix(from, 0).UTC()
	rep.To = time.Unix(to, 0).UTC()
	rep.StartedAt = time.UnixMilli(started).UTC()

	rows, err := j.db.QueryContext(ctx, `
		SELECT action, ts, price, qty
		FROM run_trades WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal get trades: %w", err)
	}
	defer rows.Close()

	rep.Result.Trades = make([]model.Trade, 0, 8)
	for rows.Next() {
		var t model.Trade
		var action string
		var ts int64
		if err := rows.Scan(&action, &ts, &t.Price, &t.Qty); err != nil {
			return nil, fmt.Errorf("journal scan trade: %w", err)
		}
		t.Action = model.TradeAction(action)
		t.TS = time.Unix(ts, 0).UTC()
		rep.Result.Trades = append(rep.Result.Trades, t)
	}
	return &rep, rows.Err()
}
