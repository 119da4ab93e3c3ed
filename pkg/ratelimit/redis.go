package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// takeScript applies the fixed-window rule to a hash {count, window_start}.
// Times are unix milliseconds supplied by the caller so every instance uses
// the same rule regardless of the Redis server clock.
//
// KEYS[1] counter key
// ARGV[1] now, ARGV[2] window, ARGV[3] limit
// returns {count, window_start, allowed}
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local start = tonumber(redis.call('HGET', KEYS[1], 'window_start') or '0')
if count == 0 or now - start >= window then
  redis.call('HSET', KEYS[1], 'count', 1, 'window_start', ARGV[1])
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, now, 1}
end
if count < limit then
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
  return {count, start, 1}
end
return {count, start, 0}
`)

// RedisStore keeps counters in Redis so every gate instance shares them.
// Each counter expires with its window.
type RedisStore struct {
	client  redis.UniversalClient
	metrics *observability.Metrics
}

// NewRedisStore creates a Redis-backed store. metrics may be nil.
func NewRedisStore(client redis.UniversalClient, metrics *observability.Metrics) *RedisStore {
	return &RedisStore{
		client:  client,
		metrics: metrics,
	}
}

// Name returns "redis"
func (s *RedisStore) Name() string { return "redis" }

// Take runs the fixed-window script atomically on the server
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (TakeResult, error) {
	start := time.Now()
	res, err := takeScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit,
	).Int64Slice()
	s.metrics.RecordRedisCommand("take", time.Since(start), err)
	if err != nil {
		return TakeResult{}, fmt.Errorf("redis take %s: %w", key, err)
	}
	if len(res) != 3 {
		return TakeResult{}, fmt.Errorf("redis take %s: unexpected reply %v", key, res)
	}

	return TakeResult{
		Counter: Counter{
			Count:       res[0],
			WindowStart: time.UnixMilli(res[1]).UTC(),
		},
		Allowed: res[2] == 1,
	}, nil
}

// Peek reads the counter hash
func (s *RedisStore) Peek(ctx context.Context, key string) (Counter, bool, error) {
	start := time.Now()
	vals, err := s.client.HMGet(ctx, key, "count", "window_start").Result()
	s.metrics.RecordRedisCommand("hmget", time.Since(start), err)
	if err != nil {
		return Counter{}, false, fmt.Errorf("redis peek %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Counter{}, false, nil
	}

	count, err := parseRedisInt(vals[0])
	if err != nil {
		return Counter{}, false, fmt.Errorf("redis peek %s count: %w", key, err)
	}
	startMs, err := parseRedisInt(vals[1])
	if err != nil {
		return Counter{}, false, fmt.Errorf("redis peek %s window_start: %w", key, err)
	}

	return Counter{Count: count, WindowStart: time.UnixMilli(startMs).UTC()}, true, nil
}

// Reset deletes the counter
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Del(ctx, key).Err()
	s.metrics.RecordRedisCommand("del", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("redis reset %s: %w", key, err)
	}
	return nil
}

func parseRedisInt(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected value type")
	}
	return strconv.ParseInt(s, 10, 64)
}
