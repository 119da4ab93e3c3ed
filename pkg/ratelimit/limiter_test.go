package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingStore struct{}

func (failingStore) Take(context.Context, string, time.Time, time.Duration, int64) (TakeResult, error) {
	return TakeResult{}, errors.New("connection refused")
}

func (failingStore) Peek(context.Context, string) (Counter, bool, error) {
	return Counter{}, false, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error { return errors.New("connection refused") }

func (failingStore) Name() string { return "failing" }

func newTestLimiter(t *testing.T, clock *testClock, opts ...Option) *Limiter {
	t.Helper()
	reg, err := NewRegistry(DefaultPolicies()...)
	require.NoError(t, err)
	store, err := NewMemoryStore(100)
	require.NoError(t, err)
	return NewLimiter(reg, store, append([]Option{WithClock(clock.Now)}, opts...)...)
}

func TestLimiter_ExhaustAndRecover(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, clock)
	ctx := context.Background()

	for _, p := range DefaultPolicies() {
		t.Run(p.Name, func(t *testing.T) {
			for i := 1; i <= p.Max; i++ {
				d, err := limiter.Check(ctx, p.Name, "ip:1.1.1.1")
				require.NoError(t, err, "call %d", i)
				assert.Equal(t, p.Max-i, d.Remaining)
			}

			clock.Advance(time.Second)
			d, err := limiter.Check(ctx, p.Name, "ip:1.1.1.1")
			require.Error(t, err)
			assert.ErrorIs(t, err, accesserr.ErrRateLimitExceeded)
			assert.False(t, d.Allowed)
			assert.Equal(t, p.Window-time.Second, d.RetryAfter)

			rej, ok := accesserr.As(err)
			require.True(t, ok)
			assert.Equal(t, p.Window-time.Second, rej.RetryAfter)

			// other key, same window
			_, err = limiter.Check(ctx, p.Name, "ip:2.2.2.2")
			assert.NoError(t, err)

			clock.Advance(p.Window)
			_, err = limiter.Check(ctx, p.Name, "ip:1.1.1.1")
			assert.NoError(t, err)
		})
	}
}

func TestLimiter_PoliciesIndependent(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Check(ctx, PolicyLogin, "ip:1.1.1.1")
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, PolicyLogin, "ip:1.1.1.1")
	require.Error(t, err)

	_, err = limiter.Check(ctx, PolicyAPI, "ip:1.1.1.1")
	assert.NoError(t, err)
}

func TestLimiter_UnknownPolicy(t *testing.T) {
	limiter := newTestLimiter(t, &testClock{now: time.Now()})
	_, err := limiter.Check(context.Background(), "nope", "ip:1.1.1.1")
	require.Error(t, err)
	_, isRejection := accesserr.As(err)
	assert.False(t, isRejection)
}

func TestLimiter_FailOpen(t *testing.T) {
	reg, err := NewRegistry(DefaultPolicies()...)
	require.NoError(t, err)

	var buf bytes.Buffer
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	limiter := NewLimiter(reg, failingStore{},
		WithLogger(observability.NewLogger(observability.InfoLevel, &buf)),
		WithMetrics(metrics),
	)

	d, err := limiter.Check(context.Background(), PolicyLogin, "ip:1.1.1.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
	assert.Contains(t, buf.String(), "Rate limit store failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitStoreErrorsTotal.WithLabelValues("failing", PolicyLogin)))
}

func TestLimiter_FailClosed(t *testing.T) {
	reg, err := NewRegistry(DefaultPolicies()...)
	require.NoError(t, err)
	limiter := NewLimiter(reg, failingStore{}, WithFailClosed())

	d, err := limiter.Check(context.Background(), PolicyLogin, "ip:1.1.1.1")
	assert.ErrorIs(t, err, accesserr.ErrUnavailable)
	assert.False(t, d.Allowed)
}

func TestLimiter_PeekAndReset(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, clock)
	ctx := context.Background()

	st, err := limiter.Peek(ctx, PolicyOTP, "phone:+15550001")
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Equal(t, 3, st.Remaining)

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, PolicyOTP, "phone:+15550001")
		require.NoError(t, err)
	}

	st, err = limiter.Peek(ctx, PolicyOTP, "phone:+15550001")
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, 1, st.Remaining)
	assert.Equal(t, clock.now.Add(10*time.Minute), st.ResetAt)

	require.NoError(t, limiter.Reset(ctx, PolicyOTP, "phone:+15550001"))
	st, err = limiter.Peek(ctx, PolicyOTP, "phone:+15550001")
	require.NoError(t, err)
	assert.False(t, st.Active)

	clock.Advance(time.Hour)
	_, err = limiter.Check(ctx, PolicyOTP, "phone:+15550001")
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)
	st, err = limiter.Peek(ctx, PolicyOTP, "phone:+15550001")
	require.NoError(t, err)
	assert.False(t, st.Active, "elapsed windows read as inactive")
}
