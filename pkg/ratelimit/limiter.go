package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Decision describes the state of a counter after a Check
type Decision struct {
	Policy    string
	Key       string
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set on rejections: the time left in the current window
	RetryAfter time.Duration
	// Degraded is set when the store failed and the request was let through
	Degraded bool
}

// Status is a read-only view of a counter, used by the ops endpoints
type Status struct {
	Policy      string    `json:"policy"`
	Key         string    `json:"key"`
	Active      bool      `json:"active"`
	Count       int64     `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start,omitempty"`
	ResetAt     time.Time `json:"reset_at,omitempty"`
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithFailClosed rejects requests with Unavailable when the store fails,
// instead of letting them through
func WithFailClosed() Option {
	return func(l *Limiter) { l.failOpen = false }
}

// WithLogger sets the logger used for store failures
func WithLogger(logger *observability.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithMetrics records decisions and store failures
func WithMetrics(metrics *observability.Metrics) Option {
	return func(l *Limiter) { l.metrics = metrics }
}

// Limiter enforces named fixed-window policies over a Store
type Limiter struct {
	registry *Registry
	store    Store
	failOpen bool
	now      func() time.Time
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewLimiter creates a limiter. Store failures fail open unless WithFailClosed is given.
func NewLimiter(registry *Registry, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		registry: registry,
		store:    store,
		failOpen: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the policies the limiter enforces
func (l *Limiter) Registry() *Registry {
	return l.registry
}

// Policy returns the named policy
func (l *Limiter) Policy(name string) (Policy, error) {
	p, ok := l.registry.Get(name)
	if !ok {
		return Policy{}, fmt.Errorf("unknown rate limit policy %q", name)
	}
	return p, nil
}

// Check counts one request against (policy, clientKey). A rejection returns
// the decision together with a RateLimitExceeded error; rejected requests are
// not counted.
func (l *Limiter) Check(ctx context.Context, policyName, clientKey string) (Decision, error) {
	p, err := l.Policy(policyName)
	if err != nil {
		return Decision{}, err
	}

	now := l.now()
	key := StoreKey(p.Name, clientKey)
	res, err := l.store.Take(ctx, key, now, p.Window, int64(p.Max))
	if err != nil {
		return l.storeFailure(ctx, p, clientKey, err)
	}

	d := Decision{
		Policy:    p.Name,
		Key:       clientKey,
		Allowed:   res.Allowed,
		Limit:     p.Max,
		Remaining: remaining(p.Max, res.Count),
		ResetAt:   res.WindowStart.Add(p.Window),
	}
	l.metrics.RecordRateLimitDecision(p.Name, d.Allowed)
	if d.Allowed {
		return d, nil
	}

	d.RetryAfter = d.ResetAt.Sub(now)
	if d.RetryAfter < 0 {
		d.RetryAfter = 0
	}
	return d, accesserr.RateLimited(p.Name, d.RetryAfter)
}

func (l *Limiter) storeFailure(ctx context.Context, p Policy, clientKey string, err error) (Decision, error) {
	l.metrics.RecordStoreError(l.store.Name(), p.Name)
	if l.logger != nil {
		observability.UpdateLoggerWithTraceContext(ctx, l.logger).WithFields(map[string]interface{}{
			"policy":    p.Name,
			"store":     l.store.Name(),
			"fail_open": l.failOpen,
		}).WithError(err).Error("Rate limit store failure")
	}

	if !l.failOpen {
		return Decision{Policy: p.Name, Key: clientKey, Limit: p.Max},
			accesserr.Wrap(accesserr.KindUnavailable, "rate limiting temporarily unavailable", err)
	}
	return Decision{
		Policy:   p.Name,
		Key:      clientKey,
		Allowed:  true,
		Limit:    p.Max,
		Degraded: true,
	}, nil
}

// Peek reports the counter for (policy, clientKey) without counting a request
func (l *Limiter) Peek(ctx context.Context, policyName, clientKey string) (Status, error) {
	p, err := l.Policy(policyName)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Policy:    p.Name,
		Key:       clientKey,
		Limit:     p.Max,
		Remaining: p.Max,
	}
	c, ok, err := l.store.Peek(ctx, StoreKey(p.Name, clientKey))
	if err != nil {
		return Status{}, err
	}
	if !ok || l.now().Sub(c.WindowStart) >= p.Window {
		return st, nil
	}

	st.Active = true
	st.Count = c.Count
	st.Remaining = remaining(p.Max, c.Count)
	st.WindowStart = c.WindowStart
	st.ResetAt = c.WindowStart.Add(p.Window)
	return st, nil
}

// Reset clears the counter for (policy, clientKey)
func (l *Limiter) Reset(ctx context.Context, policyName, clientKey string) error {
	p, err := l.Policy(policyName)
	if err != nil {
		return err
	}
	return l.store.Reset(ctx, StoreKey(p.Name, clientKey))
}

func remaining(limit int, count int64) int {
	r := int64(limit) - count
	if r < 0 {
		return 0
	}
	return int(r)
}
