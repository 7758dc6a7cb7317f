package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is a bounded retry policy.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Backoff multiplies Delay after every failed attempt. Zero or one keeps it fixed.
	Backoff float64
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	Sleep     Sleeper
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// Exponential returns a policy doubling the delay, like 1s, 2s, 4s.
func Exponential(attempts int, initial time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: initial, Backoff: 2}
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrExhausted wraps the last error once all attempts failed.
var ErrExhausted = errors.New("retries exhausted")

// DelayFor returns the wait after the given zero-based attempt.
func (p Policy) DelayFor(attempt int) time.Duration {
	if p.Backoff <= 1 {
		return p.Delay
	}
	return time.Duration(float64(p.Delay) * math.Pow(p.Backoff, float64(attempt)))
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The attempt number passed to fn starts at 1.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(i + 1); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if serr := sleep(ctx, p.DelayFor(i)); serr != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", i+1, serr)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
}
