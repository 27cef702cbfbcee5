// Package retry provides the retry loop and backoff strategies used by the
// request executor.
//
// The search API policy (DefaultConfig) allows 10 attempts per request:
//   - rate limited (429): quadratic backoff, floored at 30s, with the cumulative
//     sleep for one request kept near a 900s budget
//   - server errors (5xx): a flat 30s
//   - everything else: not retried
//
// Usage:
//
//	cfg := retry.DefaultConfig()
//	cfg.Context = ctx
//	resp, err := retry.DoWithResult(func() (*Response, error) {
//		return attempt(ctx)
//	}, cfg)
//
// Sleep is injectable so tests can record delays instead of waiting.
package retry
