// Package retry runs an operation with a bounded number of attempts and
// exponential backoff between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds retries of one unit of work (a push batch or a pull page).
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay after the first failure
	MaxDelay    time.Duration // cap on any single delay
}

// DefaultPolicy is 3 attempts waiting 1s then 2s, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns the wait after failed attempt n (1-based):
// min(BaseDelay * 2^(n-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	return Backoff(attempt, p.BaseDelay, p.MaxDelay)
}

// Backoff computes min(base * 2^(attempt-1), maxDelay). attempt is 1-based; values
// below 1 are treated as 1.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Sleeper waits between attempts. Sleep returns early with ctx.Err() when
// the context is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error // last attempt's error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// permanentError stops retrying immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Option configures Do.
type Option func(*runner)

type runner struct {
	sleeper Sleeper
	notify  func(attempt int, delay time.Duration, err error)
}

// WithSleeper sets how Do waits between attempts. Default: TimerSleeper.
func WithSleeper(s Sleeper) Option {
	return func(r *runner) {
		r.sleeper = s
	}
}

// WithNotify registers a callback invoked after each failed attempt that
// will be retried.
func WithNotify(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *runner) {
		r.notify = fn
	}
}

// Do calls fn until it succeeds, returns a Permanent error, the context is
// done, or p.MaxAttempts attempts have failed. In the last case the error is
// an *ExhaustedError wrapping the final failure.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	r := runner{sleeper: TimerSleeper{}}
	for _, opt := range opts {
		opt(&r)
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, err
		}
		if attempt >= attempts {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := p.Delay(attempt)
		if r.notify != nil {
			r.notify(attempt, delay, err)
		}
		if err := r.sleeper.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}
