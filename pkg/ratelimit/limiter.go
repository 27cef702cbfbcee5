package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for client-side request shaping
type Limiter interface {
	// Allow reports whether a request may go out right now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may go out or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the limiter to a full bucket
	Reset()
}

// TokenBucket spreads requests evenly over a minute with a small burst allowance
type TokenBucket struct {
	mu        sync.Mutex
	perMinute int
	burst     int
	limiter   *rate.Limiter
}

// NewTokenBucket creates a limiter allowing perMinute requests per minute.
// A non-positive perMinute disables limiting.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	tb := &TokenBucket{perMinute: perMinute, burst: burst}
	tb.limiter = tb.newLimiter()
	return tb
}

func (tb *TokenBucket) newLimiter() *rate.Limiter {
	if tb.perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, tb.burst)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(tb.perMinute)), tb.burst)
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = tb.newLimiter()
}

// Interval is the steady-state gap between requests, or 0 when unlimited.
func (tb *TokenBucket) Interval() time.Duration {
	limit := tb.current().Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(time.Second) / float64(limit)))
}

// Unlimited returns a limiter that never blocks
func Unlimited() Limiter {
	return unlimited{}
}

type unlimited struct{}

func (unlimited) Allow() bool                    { return true }
func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (unlimited) Reset()                         {}
