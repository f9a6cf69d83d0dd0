// Package retry provides a retry-with-backoff combinator decoupled
// from the code issuing the calls.
package retry

import (
	"context"
	"time"
)

// DefaultPolicy is the policy used when none is configured.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1000 * time.Millisecond,
}

// Policy describes a bounded exponential backoff schedule.
// The delay before retry N (zero-indexed attempt N failing) is
// BaseDelay * 2^N, so the first retry waits exactly BaseDelay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
}

// Normalize returns the policy with zero values replaced by defaults.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	return p
}

// Delay returns the backoff delay after the given zero-indexed attempt fails.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// Retryable reports whether an error is worth retrying. Errors that
// don't implement it are treated as retryable.
type Retryable interface {
	Retryable() bool
}

// Do runs fn up to p.MaxAttempts times, sleeping per the policy
// between attempts. It stops early when fn succeeds, when the error
// reports itself as not retryable, or when ctx is done. The last
// error is returned on exhaustion.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	p = p.Normalize()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt - 1)):
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if r, ok := lastErr.(Retryable); ok && !r.Retryable() {
			return lastErr
		}
	}

	return lastErr
}
