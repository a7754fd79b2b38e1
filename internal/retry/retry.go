package retry

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when every attempt failed or the condition
// never held.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// DefaultBackoff is the delay schedule used while waiting for upstream data
// (plan card + dossier) before plan initialization auto-starts. Thresholds are
// defaults, not tuned constants; callers may pass their own schedule.
var DefaultBackoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	time.Minute,
	2 * time.Minute,
	5 * time.Minute,
}

// WithBackoff runs fn until it succeeds or the schedule is exhausted. The
// first attempt waits for the first delay; there is one attempt per schedule
// entry. Context cancellation stops the loop.
func WithBackoff(ctx context.Context, schedule []time.Duration, fn func(ctx context.Context) error) error {
	if len(schedule) == 0 {
		schedule = DefaultBackoff
	}
	var lastErr error
	for _, delay := range schedule {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrAttemptsExhausted
}

// Linear runs fn up to attempts times with a fixed delay between tries,
// starting immediately. Used to paper over read-after-write races against the
// primary store.
func Linear(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrAttemptsExhausted
}
