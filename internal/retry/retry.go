// Package retry provides the bounded, linearly backed-off retry loop used for
// optimistic-locking conflicts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted is returned by Do when every attempt asked to be retried.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
}

// Linear returns attempt * base with overflow protection. Attempts below one
// yield zero.
func Linear(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	if int64(base) > math.MaxInt64/int64(attempt) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(int64(attempt) * int64(base))
}

// SleepWithContext sleeps for d unless ctx ends first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}

// Do runs fn up to p.MaxAttempts times. fn is retried only while retryable(err)
// holds; any other error, or success, ends the loop. Between attempts Do waits
// Linear(p.Base, attempt). When the bound is hit, the last error is returned
// joined with ErrExhausted.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := SleepWithContext(ctx, Linear(p.Base, attempt)); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}
	return errors.Join(err, ErrExhausted)
}
