package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
	"github.com/ericfisherdev/garminsync/internal/observability"
)

// RetryPolicy bounds how an upstream call is retried. Waits grow from
// InitialInterval by Multiplier up to MaxInterval with no jitter.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Retryable decides whether an error is worth another attempt.
	// IsTransient is used when nil.
	Retryable func(error) bool
}

// DefaultRetryPolicy makes three attempts, waiting 4s and then 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 4 * time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		Retryable:       IsTransient,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Retry runs op under the policy. Errors the policy does not consider
// retryable are returned immediately; otherwise the last error is returned
// once attempts run out. Cancelling ctx stops any pending wait.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		observability.RecordRetry()
		slog.Warn("retrying upstream call", "attempt", attempt, "wait", wait, "error", err)
	}

	return backoff.RetryNotifyWithData(wrapped, policy.backOff(ctx), notify)
}

// IsTransient reports whether err is a connection or timeout class failure
// that may succeed on a later attempt. Cancellation is never transient, and
// neither are client errors such as certificate failures or a bad URL scheme,
// even though http.Client wraps them in a *url.Error.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driven.ErrUpstreamUnavailable) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
