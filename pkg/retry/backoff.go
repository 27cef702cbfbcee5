package retry

import (
	"context"
	"time"

	errs "searchtweets/pkg/errors"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay to wait after the given failed attempt (1-based)
	NextDelay(attempt int) time.Duration
	// Reset resets the backoff strategy to initial state
	Reset()
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset resets the backoff (no-op for constant backoff)
func (cb *ConstantBackoff) Reset() {}

// RateLimitBackoff grows quadratically with the attempt number while keeping
// the cumulative sleep for one call inside Budget. Every delay is at least Floor.
//
//	delay = max(min((attempt*2)^2 s, max(Budget - slept, Floor)), Floor)
type RateLimitBackoff struct {
	Budget time.Duration
	Floor  time.Duration

	slept time.Duration
}

// NewRateLimitBackoff returns the 15 minute / 30 second policy used for HTTP 429.
func NewRateLimitBackoff() *RateLimitBackoff {
	return &RateLimitBackoff{
		Budget: 900 * time.Second,
		Floor:  30 * time.Second,
	}
}

// NextDelay computes the next delay and adds it to the cumulative total.
func (rb *RateLimitBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	grow := time.Duration((attempt*2)*(attempt*2)) * time.Second
	remaining := rb.Budget - rb.slept
	if remaining < rb.Floor {
		remaining = rb.Floor
	}
	delay := min(grow, remaining)
	if delay < rb.Floor {
		delay = rb.Floor
	}
	rb.slept += delay
	return delay
}

// Slept returns the cumulative delay handed out since the last Reset.
func (rb *RateLimitBackoff) Slept() time.Duration {
	return rb.slept
}

// Reset clears the cumulative total.
func (rb *RateLimitBackoff) Reset() {
	rb.slept = 0
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorTypeBackoff picks a backoff strategy from the error's type.
type ErrorTypeBackoff struct {
	// RateLimitBackoff for HTTP 429
	RateLimitBackoff BackoffStrategy
	// ServerErrorBackoff for 5xx responses
	ServerErrorBackoff BackoffStrategy
	// DefaultBackoff for anything else a RetryIf lets through
	DefaultBackoff BackoffStrategy
}

// NewErrorTypeBackoff returns the search API policy: quadratic within a
// 900 s budget for rate limits, a flat 30 s for server errors.
func NewErrorTypeBackoff() *ErrorTypeBackoff {
	return &ErrorTypeBackoff{
		RateLimitBackoff:   NewRateLimitBackoff(),
		ServerErrorBackoff: &ConstantBackoff{Delay: 30 * time.Second},
		DefaultBackoff:     &ConstantBackoff{Delay: 30 * time.Second},
	}
}

// ForError returns the appropriate backoff strategy for err
func (etb *ErrorTypeBackoff) ForError(err error) BackoffStrategy {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeRateLimit:
		return etb.RateLimitBackoff
	case errs.ErrorTypeServerError:
		return etb.ServerErrorBackoff
	default:
		return etb.DefaultBackoff
	}
}

// Reset resets every strategy.
func (etb *ErrorTypeBackoff) Reset() {
	etb.RateLimitBackoff.Reset()
	etb.ServerErrorBackoff.Reset()
	etb.DefaultBackoff.Reset()
}
