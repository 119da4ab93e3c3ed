package ratelimit

import (
	"context"
	"time"
)

// Counter is the state of one (policy, client key) window
type Counter struct {
	Count       int64
	WindowStart time.Time
}

// TakeResult is the outcome of one atomic Take
type TakeResult struct {
	Counter
	Allowed bool
}

// Store persists counters. Take must be atomic per key: concurrent callers on
// the same key never admit more than max requests in a window.
type Store interface {
	// Take applies the fixed-window rule at now for a window admitting limit requests
	Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (TakeResult, error)
	// Peek returns the stored counter, if any, without changing it
	Peek(ctx context.Context, key string) (Counter, bool, error)
	// Reset forgets the counter
	Reset(ctx context.Context, key string) error
	// Name identifies the backend in logs and metrics
	Name() string
}

// StoreKey is the storage key for a (policy, client key) pair
func StoreKey(policy, clientKey string) string {
	return "ratelimit:" + policy + ":" + clientKey
}
