package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache memoizes expensive read-side aggregates in redis and degrades to an
// in-process store when redis is unreachable. Degradation is transparent to
// callers: identical key and TTL semantics, one warning logged per outage.
//
// Concurrent callers for the same missing key may both run the compute
// function (cache-aside, no single-flight); analytics computations are
// idempotent, so a race only costs redundant work.
type Cache struct {
	rdb    *redis.Client
	mem    *memoryStore
	logger *zap.Logger

	degraded atomic.Bool
	done     chan struct{}
}

func New(ctx context.Context, addr, password string, db int, logger *zap.Logger) *Cache {
	var rdb *redis.Client
	if strings.TrimSpace(addr) != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			if logger != nil {
				logger.Warn("redis unreachable at startup, using in-process cache", zap.Error(err))
			}
		}
	}
	c := &Cache{
		rdb:    rdb,
		mem:    newMemoryStore(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go c.sweeper()
	return c
}

func (c *Cache) Close() error {
	close(c.done)
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// sweeper trims expired fallback entries so an extended redis outage does not
// grow the in-process map without bound.
func (c *Cache) sweeper() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mem.sweep(time.Now())
		}
	}
}

// Key builds the deterministic cache key for a metric and its parameters.
func Key(metric string, params ...any) string {
	if len(params) == 0 {
		return metric
	}
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, metric)
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	return strings.Join(parts, ":")
}

func (c *Cache) getBytes(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb != nil {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			c.markHealthy()
			return b, true
		}
		if err == redis.Nil {
			c.markHealthy()
			return nil, false
		}
		c.markDegraded(err)
	}
	return c.mem.get(key, time.Now())
}

func (c *Cache) setBytes(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if c.rdb != nil {
		err := c.rdb.Set(ctx, key, value, ttl).Err()
		if err == nil {
			c.markHealthy()
			return
		}
		c.markDegraded(err)
	}
	c.mem.set(key, value, ttl, time.Now())
}

func (c *Cache) markDegraded(err error) {
	if c.degraded.CompareAndSwap(false, true) && c.logger != nil {
		c.logger.Warn("redis unavailable, falling back to in-process cache", zap.Error(err))
	}
}

func (c *Cache) markHealthy() {
	if c.degraded.CompareAndSwap(true, false) && c.logger != nil {
		c.logger.Info("redis reachable again")
	}
}

// Degraded reports whether the last redis round trip failed.
func (c *Cache) Degraded() bool {
	return c.degraded.Load()
}

// GetOrCompute returns the cached value for key if it is still live,
// otherwise runs compute, stores the result with expiry now+ttl, and returns
// it. Values round-trip through JSON, so a hit replays exactly the bytes the
// original computation produced.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c != nil {
		if b, ok := c.getBytes(ctx, key); ok {
			var v T
			if err := json.Unmarshal(b, &v); err == nil {
				return v, nil
			}
			// Corrupt entry: fall through and recompute.
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	if c != nil {
		if b, err := json.Marshal(v); err == nil {
			c.setBytes(ctx, key, b, ttl)
		}
	}
	return v, nil
}
