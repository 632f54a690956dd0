package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the database at path with WAL mode and the full
// schema. A single connection serializes writers.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			close  REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id          TEXT    PRIMARY KEY,
			symbol          TEXT    NOT NULL,
			strategy        TEXT    NOT NULL,
			fast            INTEGER NOT NULL,
			slow            INTEGER NOT NULL,
			trend           INTEGER NOT NULL,
			rsi             INTEGER NOT NULL,
			initial_cash    REAL    NOT NULL,
			stop_loss_pct   REAL    NOT NULL,
			take_profit_pct REAL    NOT NULL,
			from_ts         INTEGER NOT NULL,
			to_ts           INTEGER NOT NULL,
			bars            INTEGER NOT NULL,
			roi_pct         REAL    NOT NULL,
			win_rate_pct    REAL    NOT NULL,
			trade_count     INTEGER NOT NULL,
			final_value     REAL    NOT NULL,
			max_drawdown    REAL    NOT NULL,
			open_position   INTEGER NOT NULL,
			started_at      INTEGER NOT NULL,
			duration_ms     REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, started_at);

		CREATE TABLE IF NOT EXISTS run_trades (
			run_id TEXT    NOT NULL,
			seq    INTEGER NOT NULL,
			action TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			qty    INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}
