package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"market-analyzer/internal/backtest"
)

const defaultLatestTTL = 24 * time.Hour

// WriterConfig configures the Redis connection.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// NewClient creates a client and pings the server.
func NewClient(cfg WriterConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// Writer publishes finished reports.
type Writer struct {
	client *goredis.Client

	// OnWrite is called with the pipeline latency after each write (optional).
	OnWrite func(d time.Duration)
}

// NewWriter wraps a connected client.
func NewWriter(client *goredis.Client) *Writer {
	return &Writer{client: client}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// WriteReport stores the report as the symbol's latest, appends it to the
// runs stream and publishes it for live subscribers, in one pipeline.
func (w *Writer) WriteReport(ctx context.Context, rep *backtest.Report) error {
	start := time.Now()
	jsonData := string(rep.JSON())

	pipe := w.client.Pipeline()

	// SET latest report with TTL
	pipe.Set(ctx, LatestKey(rep.Symbol), jsonData, defaultLatestTTL)

	// XADD to the runs stream with auto-trimming
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: RunsStream,
		MaxLen: runsStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id": rep.RunID,
			"symbol": rep.Symbol,
			"data":   jsonData,
		},
	})

	// PUBLISH for gateway subscribers
	pipe.Publish(ctx, ReportChannel(rep.Symbol), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for run %s: %w", rep.RunID, err)
	}
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
