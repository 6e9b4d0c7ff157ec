// Package ratelimit throttles outgoing requests per key, typically one key
// per node endpoint so that several workers sharing a URL share its budget.
package ratelimit

import "context"

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a token
	// if so. It never blocks.
	Allow(ctx context.Context, key string) (bool, error)

	// Wait blocks until a request may proceed or ctx ends.
	Wait(ctx context.Context, key string) error

	// Close releases background resources.
	Close() error
}

// NoopLimiter permits every request. Used when throttling is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Wait returns immediately unless ctx is already done.
func (NoopLimiter) Wait(ctx context.Context, _ string) error { return ctx.Err() }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// New returns a MemoryLimiter, or a NoopLimiter when rate is not positive.
func New(rate float64, burst int) Limiter {
	if rate <= 0 {
		return NoopLimiter{}
	}
	return NewMemoryLimiter(rate, max(burst, 1))
}
