package driven

import (
	"context"
	"time"
)

// RateLimiter is a shared sliding-window request counter. Every call records
// a request; it reports whether the count of requests already inside the
// window was below limit.
type RateLimiter interface {
	IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
