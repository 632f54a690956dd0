package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	goredis "github.com/go-redis/redis/v8"

	"market-analyzer/internal/backtest"
)

// Reader reads published reports back out of Redis.
type Reader struct {
	client *goredis.Client
}

// NewReader wraps a connected client.
func NewReader(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// Latest returns the newest report for symbol, or nil when none is stored.
func (r *Reader) Latest(ctx context.Context, symbol string) (*backtest.Report, error) {
	data, err := r.client.Get(ctx, LatestKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", LatestKey(symbol), err)
	}
	var rep backtest.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode latest %s: %w", symbol, err)
	}
	return &rep, nil
}

// Recent returns up to count reports from the runs stream, newest first.
func (r *Reader) Recent(ctx context.Context, count int64) ([]*backtest.Report, error) {
	msgs, err := r.client.XRevRangeN(ctx, RunsStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", RunsStream, err)
	}

	out := make([]*backtest.Report, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var rep backtest.Report
		if err := json.Unmarshal([]byte(data), &rep); err != nil {
			log.Printf("[redis-reader] skip bad stream entry %s: %v", msg.ID, err)
			continue
		}
		out = append(out, &rep)
	}
	return out, nil
}

// SubscribeReports pattern-subscribes to every report channel.
// Returns the PubSub handle so the caller can listen on .Channel().
func (r *Reader) SubscribeReports(ctx context.Context) (*goredis.PubSub, error) {
	pubsub := r.client.PSubscribe(ctx, ReportPattern)
	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", ReportPattern, err)
	}
	return pubsub, nil
}
