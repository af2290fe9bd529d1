// Package cache keeps rolling per-category event counters in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-counter-service/internal/pool"
)

var (
	// ErrCorruption is returned when a counter key holds something that is not
	// a non-negative integer.
	ErrCorruption = errors.New("counter value corrupted")

	// ErrUnavailable wraps Redis failures after a connection was obtained.
	ErrUnavailable = errors.New("counter cache unavailable")
)

// NewRedisPool builds a disconnected pool for redisURL. Each pooled
// connection is a go-redis client restricted to a single socket, so the pool
// alone decides how many connections are open.
func NewRedisPool(redisURL string, cfg pool.Config, logger *zap.Logger) (*pool.Pool[*redis.Client], error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	opts.PoolTimeout = cfg.Timeout
	opts.DisableIdentity = true

	dial := func(ctx context.Context) (*redis.Client, error) {
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}
	closeConn := func(c *redis.Client) error { return c.Close() }

	if cfg.Name == "" {
		cfg.Name = "redis"
	}
	return pool.New[*redis.Client](cfg, dial, closeConn, nil, logger)
}

// Option configures a RedisCache.
type Option func(*RedisCache)

// WithPrefix sets the key prefix. Keys are "<prefix>:<event_type>".
func WithPrefix(prefix string) Option {
	return func(c *RedisCache) { c.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the rolling window reset on every increment.
func WithTTL(d time.Duration) Option {
	return func(c *RedisCache) { c.ttl = d }
}

// RedisCache counts events per category over a rolling window. It does not
// own its pool.
type RedisCache struct {
	pool   *pool.Pool[*redis.Client]
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing pool. Defaults: prefix "events", 24h TTL.
func NewRedisCache(p *pool.Pool[*redis.Client], opts ...Option) *RedisCache {
	c := &RedisCache{
		pool:   p,
		prefix: "events",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(eventType string) string {
	return c.prefix + ":" + eventType
}

// IncrementCounter increments the counter for eventType and resets its TTL in
// one MULTI/EXEC block, returning the new value.
func (c *RedisCache) IncrementCounter(ctx context.Context, eventType string) (int64, error) {
	key := c.key(eventType)

	var incr *redis.IntCmd
	err := c.pool.Use(ctx, func(ctx context.Context, rdb *redis.Client) error {
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, c.classify(key, err)
	}
	return incr.Val(), nil
}

// GetCounter returns the current count for eventType, 0 when the key is
// absent or expired.
func (c *RedisCache) GetCounter(ctx context.Context, eventType string) (int64, error) {
	key := c.key(eventType)

	var (
		raw   string
		found bool
	)
	err := c.pool.Use(ctx, func(ctx context.Context, rdb *redis.Client) error {
		v, err := rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		raw, found = v, err == nil
		return err
	})
	if err != nil {
		return 0, c.classify(key, err)
	}
	if !found {
		return 0, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s holds %q", ErrCorruption, key, raw)
	}
	return n, nil
}

// Ping is used by the readiness endpoint.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.pool.Use(ctx, func(ctx context.Context, rdb *redis.Client) error {
		return rdb.Ping(ctx).Err()
	})
}

func (c *RedisCache) classify(key string, err error) error {
	switch {
	case errors.Is(err, pool.ErrExhausted),
		errors.Is(err, pool.ErrConnection),
		errors.Is(err, pool.ErrNotConnected),
		errors.Is(err, context.Canceled):
		return err
	case strings.Contains(err.Error(), "not an integer"),
		strings.HasPrefix(err.Error(), "WRONGTYPE"):
		return fmt.Errorf("%w: %s: %v", ErrCorruption, key, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
