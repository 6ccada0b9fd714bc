// Package retry provides a small bounded-retry helper with exponential backoff.
// It is used only for best-effort cleanup paths; user-facing operations
// surface failures immediately instead of retrying.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retry loop. MaxAttempts must be >= 1.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

// IsPermanent classifies an error; permanent errors abort the loop immediately.
type IsPermanent func(err error) bool

// Operation is one attempt returning a value.
type Operation[T any] func() (T, error)

// Do runs op until it succeeds, fails permanently, or the attempt budget is
// exhausted. Backoff doubles after each attempt.
func Do[T any](ctx context.Context, p Policy, permanent IsPermanent, op Operation[T]) (T, error) {
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		if permanent != nil && permanent(err) {
			var zero T
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

// DoVoid is Do for operations without a return value.
func DoVoid(ctx context.Context, p Policy, permanent IsPermanent, op func() error) error {
	_, err := Do(ctx, p, permanent, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// PermanentError wraps an error classified as permanent.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
