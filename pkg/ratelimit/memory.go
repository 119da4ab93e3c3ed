package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryMaxKeys bounds the in-memory store when no size is given
const DefaultMemoryMaxKeys = 100000

type memoryEntry struct {
	count       int64
	windowStart time.Time
	window      time.Duration
}

// MemoryStore keeps counters in a bounded LRU inside the process. It is
// correct for a single instance only; when full, the least recently used
// counter is dropped.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *memoryEntry]
}

// NewMemoryStore creates a memory store holding at most maxKeys counters
func NewMemoryStore(maxKeys int) (*MemoryStore, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMemoryMaxKeys
	}
	cache, err := lru.New[string, *memoryEntry](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// Name returns "memory"
func (s *MemoryStore) Name() string { return "memory" }

// Take applies the fixed-window rule under the store lock
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration, limit int64) (TakeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Get(key)
	if !ok || e.count == 0 || now.Sub(e.windowStart) >= window {
		e = &memoryEntry{count: 1, windowStart: now, window: window}
		s.cache.Add(key, e)
		return TakeResult{Counter: Counter{Count: 1, WindowStart: now}, Allowed: true}, nil
	}

	if e.count < limit {
		e.count++
		return TakeResult{Counter: Counter{Count: e.count, WindowStart: e.windowStart}, Allowed: true}, nil
	}

	return TakeResult{Counter: Counter{Count: e.count, WindowStart: e.windowStart}, Allowed: false}, nil
}

// Peek returns the counter without touching its recency
func (s *MemoryStore) Peek(_ context.Context, key string) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Peek(key)
	if !ok {
		return Counter{}, false, nil
	}
	return Counter{Count: e.count, WindowStart: e.windowStart}, true, nil
}

// Reset removes the counter
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
	return nil
}

// Sweep drops every counter whose window has elapsed at now and returns how
// many were removed
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.cache.Keys() {
		e, ok := s.cache.Peek(key)
		if ok && now.Sub(e.windowStart) >= e.window {
			s.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored counters
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
