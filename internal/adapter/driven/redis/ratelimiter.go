// Package redis implements the shared sliding-window rate limiter on top of
// Redis sorted sets, so every process talking to the upstream draws from the
// same request budget.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateLimiter = (*SlidingWindowLimiter)(nil)

// SlidingWindowLimiter counts requests per key in a sorted set scored by
// request time in microseconds.
type SlidingWindowLimiter struct {
	client goredis.Cmdable
	now    func() time.Time
}

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// NewSlidingWindowLimiter creates a limiter backed by the given Redis client.
func NewSlidingWindowLimiter(client goredis.Cmdable, opts ...Option) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{client: client, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewClient parses a redis:// URL and returns a connected client. The
// connection is verified with PING before returning.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// IsAllowed records a request against key and reports whether fewer than
// limit requests were already inside the trailing window. The prune, count,
// insert and expiry run as a single MULTI/EXEC transaction. Rejected calls are
// recorded too, so a caller hammering the limiter keeps its window full.
func (l *SlidingWindowLimiter) IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := l.now()
	cutoff := now.Add(-window).UnixMicro()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	var count *goredis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		count = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixMicro()), Member: member})
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %q: %w", key, err)
	}

	return count.Val() < int64(limit), nil
}
