// Package retry runs an operation with bounded attempts and capped
// exponential backoff.
//
// Errors wrapped with Fatal stop the loop immediately; every other error is
// retried until the attempt budget is spent. Delays never decrease from one
// attempt to the next.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures retries.
type Policy struct {
	// Retries is the number of additional attempts after the first one.
	// Zero means exactly one attempt.
	Retries int

	// Backoff is the delay before the first retry.
	// Default: 1s
	Backoff time.Duration

	// MaxBackoff caps the delay.
	// Default: 30s
	MaxBackoff time.Duration
}

// DefaultPolicy returns the default policy: 3 retries, 1s doubling to 30s.
func DefaultPolicy() Policy {
	return Policy{
		Retries:    3,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Delay returns the wait before retry number n (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.Backoff <= 0 {
		return 0
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff < p.Backoff {
		maxBackoff = p.Backoff
	}

	d := p.Backoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxBackoff || d <= 0 {
			return maxBackoff
		}
	}
	return d
}

// Do calls op until it succeeds, returns a fatal error, ctx is done, or
// Retries+1 attempts have been made. op receives the 1-based attempt number.
// onRetry, if non-nil, is called before each wait.
//
// Do returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, op func(attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) (int, error) {
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}

	var attempt int
	for {
		attempt++
		err := op(attempt)
		if err == nil {
			return attempt, nil
		}
		if IsFatal(err) || ctx.Err() != nil || attempt > retries {
			return attempt, err
		}

		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as not worth retrying. Fatal(nil) returns nil.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or any error it wraps, was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
