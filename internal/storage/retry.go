package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// maxRetryDelay caps the backoff between attempts.
const maxRetryDelay = 2 * time.Second

// retriable reports whether err is a transient failure after which the
// statement is known not to have been applied.
func retriable(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available
		return true
	}
	return false
}

// WithRetry calls fn until it succeeds, fails with a non-transient error, or
// has been retried maxRetries times. Delays start at baseDelay and double
// with jitter up to maxRetryDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt == maxRetries || !retriable(err) {
			return err
		}
		wait := min(delay+time.Duration(rand.Int64N(int64(delay)+1)), maxRetryDelay) //nolint:gosec // jitter only
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
