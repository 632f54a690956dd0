package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"market-analyzer/internal/backtest"
)

// ResultCache stores reports under backtest.CacheKey keys with a TTL.
// Calls go through the circuit breaker so a dead Redis costs one fast
// rejection per run instead of a dial timeout. It implements backtest.Cache.
type ResultCache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
}

// NewResultCache creates a cache. cb may be shared with other Redis users.
func NewResultCache(client *goredis.Client, cb *CircuitBreaker, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{client: client, cb: cb, ttl: ttl}
}

// Get returns the cached report for key, if any.
func (c *ResultCache) Get(ctx context.Context, key string) (*backtest.Report, bool, error) {
	var data []byte
	err := c.cb.Execute(func() error {
		b, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil // a miss is not a failure
		}
		data = b
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	var rep backtest.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, false, fmt.Errorf("decode cached report %s: %w", key, err)
	}
	return &rep, true, nil
}

// Put stores rep under key.
func (c *ResultCache) Put(ctx context.Context, key string, rep *backtest.Report) error {
	return c.cb.Execute(func() error {
		return c.client.Set(ctx, key, rep.JSON(), c.ttl).Err()
	})
}
