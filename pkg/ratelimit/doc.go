// Package ratelimit shapes outgoing search requests on the client side.
//
// The search endpoints enforce per-window request quotas and answer 429 when
// a client exceeds them. The executor already backs off on 429, but a
// TokenBucket lets long-running jobs stay under the quota instead of
// repeatedly hitting it.
//
// Usage:
//
//	// At most 60 requests per minute, no burst
//	limiter := ratelimit.NewTokenBucket(60, 1)
//
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//	// Issue the request
//
// Unlimited returns a Limiter that never blocks.
package ratelimit
