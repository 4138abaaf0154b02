package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultSQLiteBackoff retries three times: 100ms, 200ms, 400ms.
var DefaultSQLiteBackoff = Backoff{Attempts: 3, BaseDelay: 100 * time.Millisecond}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The delay doubles after every failed attempt.
func Retry(ctx context.Context, b Backoff, retryable func(error) bool, op string, fn func() error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) || i == attempts-1 {
			break
		}

		delay := b.BaseDelay * time.Duration(1<<i)
		slog.Debug("operation failed with retryable error, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
