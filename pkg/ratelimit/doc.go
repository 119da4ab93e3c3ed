// Package ratelimit enforces named fixed-window request limits.
//
// # Policies
//
// A Policy names a window, a cap and how requests are keyed. Four ship by default:
//
//	login    5 per 15m, by client IP
//	otp      3 per 10m, by the "phone" field
//	payment  10 per 1m, by subject
//	api      100 per 1m, by client IP
//
// Counters for different policies never mix; the store key is
// "ratelimit:<policy>:<client key>".
//
// # Window rule
//
// For each (policy, key): with no counter, or once the window has elapsed, a new
// window starts at count 1 and the request is allowed. Below the cap the count
// is incremented. At the cap the request is rejected and the count is left as is.
//
// # Stores
//
//	store, _ := ratelimit.NewMemoryStore(100000)       // single instance
//	store := ratelimit.NewRedisStore(redisClient, m)   // shared across instances
//
//	limiter := ratelimit.NewLimiter(registry, store, ratelimit.WithLogger(logger))
//	decision, err := limiter.Check(ctx, "login", "ip:203.0.113.7")
//
// Store failures let traffic through unless the limiter is built WithFailClosed.
package ratelimit
