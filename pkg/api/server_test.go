package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/pipeline"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/routes"
)

const restaurantID = "6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f"

type testEnv struct {
	server  *Server
	codec   *auth.TokenCodec
	metrics *observability.Metrics
	trail   *audit.FileLogger
}

func newTestEnv(t *testing.T, upstream http.Handler, timeout time.Duration) *testEnv {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	registry, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
	require.NoError(t, err)
	store, err := ratelimit.NewMemoryStore(1000)
	require.NoError(t, err)

	compiled, err := routes.Default().Compile(registry)
	require.NoError(t, err)

	trail, err := audit.NewFileLogger(audit.FileLoggerConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	trusted, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	srv, err := NewServer(compiled, Options{
		Deps: pipeline.Deps{
			Limiter:       ratelimit.NewLimiter(registry, store, ratelimit.WithMetrics(metrics)),
			Authenticator: auth.NewAuthenticator(codec, logger, metrics),
			Authorizer:    rbac.NewAuthorizer(),
			Logger:        logger,
			Metrics:       metrics,
			Audit:         trail,
		},
		Upstream:       upstream,
		RequestTimeout: timeout,
		MaxBodyBytes:   1 << 20,
		TrustedProxies: trusted,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, codec: codec, metrics: metrics, trail: trail}
}

func (e *testEnv) token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	token, _, err := e.codec.Issue(subject, role)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func orderBody() string {
	return `{"restaurant_id":"` + restaurantID + `","delivery_address":"12 Baker Street","payment_method":"card"}`
}

func TestNewServer_RegistersRoutes(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	names := env.server.Routes()
	assert.Contains(t, names, "orders.create")
	assert.Contains(t, names, "ops.ratelimit.peek")
	assert.Contains(t, names, "ops.ratelimit.reset")
	assert.NotNil(t, env.server.Router().Get("payments.create"))
}

func TestNewServer_Errors(t *testing.T) {
	registry, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
	require.NoError(t, err)
	store, err := ratelimit.NewMemoryStore(10)
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	limiter := ratelimit.NewLimiter(registry, store)

	_, err = NewServer(nil, Options{Deps: pipeline.Deps{Limiter: limiter}})
	assert.Error(t, err, "logger is required")

	_, err = NewServer(nil, Options{Deps: pipeline.Deps{Logger: logger}})
	assert.Error(t, err, "limiter is required")

	bad := []routes.Compiled{{
		Route: routes.Route{Name: "x", Method: http.MethodGet, Path: "/x"},
		Spec:  pipeline.Spec{Name: "x", Policy: "burst"},
	}}
	_, err = NewServer(bad, Options{Deps: pipeline.Deps{Logger: logger, Limiter: limiter}})
	assert.Error(t, err)
}

func TestServer_ProxiesWithIdentity(t *testing.T) {
	var gotHeaders http.Header
	var gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	target, err := url.Parse(backend.URL)
	require.NoError(t, err)
	env := newTestEnv(t, NewProxy(target, nil), 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(orderBody()))
	req.Header.Set("Authorization", "Bearer "+env.token(t, "cust-1", auth.RoleCustomer))
	req.Header.Set(HeaderAuthRole, "super_admin")
	req.Header.Set(HeaderAuthSubject, "someone-else")
	rec := env.do(req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, gotHeaders)
	assert.Equal(t, "cust-1", gotHeaders.Get(HeaderAuthSubject))
	assert.Equal(t, "customer", gotHeaders.Get(HeaderAuthRole))
	assert.Len(t, gotHeaders.Values(HeaderAuthRole), 1)
	assert.NotEmpty(t, gotHeaders.Get(httputil.RequestIDHeader))
	assert.Equal(t, rec.Header().Get(httputil.RequestIDHeader), gotHeaders.Get(httputil.RequestIDHeader))
	assert.Equal(t, orderBody(), gotBody)
}

func TestServer_AnonymousStripsForgedIdentity(t *testing.T) {
	var gotHeaders http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
	}))
	defer backend.Close()

	target, err := url.Parse(backend.URL)
	require.NoError(t, err)
	env := newTestEnv(t, NewProxy(target, nil), 5*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/menu", nil)
	req.Header.Set(HeaderAuthSubject, "admin-1")
	req.Header.Set(HeaderAuthRole, "super_admin")
	rec := env.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotHeaders)
	assert.Empty(t, gotHeaders.Get(HeaderAuthSubject))
	assert.Empty(t, gotHeaders.Get(HeaderAuthRole))
}

func TestServer_EchoWithoutUpstream(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+restaurantID, nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "rest-3", auth.RoleRestaurant))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body EchoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "orders.get", body.Route)
	assert.Equal(t, "rest-3", body.Subject)
	assert.Equal(t, "restaurant", body.Role)
	assert.NotEmpty(t, body.RequestID)
}

func TestServer_Rejections(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	tests := []struct {
		name     string
		req      func() *http.Request
		wantCode int
		wantKind accesserr.Kind
	}{
		{
			name: "missing token",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(orderBody()))
			},
			wantCode: http.StatusUnauthorized,
			wantKind: accesserr.KindMissingToken,
		},
		{
			name: "wrong role",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/finance/payouts", strings.NewReader(`{}`))
				r.Header.Set("Authorization", "Bearer "+env.token(t, "cust-1", auth.RoleCustomer))
				return r
			},
			wantCode: http.StatusForbidden,
			wantKind: accesserr.KindForbidden,
		},
		{
			name: "invalid path variable",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/restaurants/not-a-uuid/menu", nil)
			},
			wantCode: http.StatusBadRequest,
			wantKind: accesserr.KindValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.req())
			assert.Equal(t, tt.wantCode, rec.Code)

			var body httputil.RejectionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body.Error)
		})
	}
}

func TestServer_LoginRateLimited(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"a@example.com","password":"hunter2hunter2"}`))
		req.RemoteAddr = "203.0.113.9:5000"
		return env.do(req)
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send().Code, "request %d", i+1)
	}
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestServer_LoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	admitted := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"a@example.com","password":"hunter2hunter2"}`))
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i))
		if env.do(req).Code == http.StatusOK {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestServer_LoginRateLimitBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	n := 0
	send := func(client string) int {
		n++
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"a@example.com","password":"hunter2hunter2"}`))
		req.RemoteAddr = "10.0.0.2:5000"
		// A client-supplied hop in front of the real one must not matter
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.1.1.%d, %s", n, client))
		return env.do(req).Code
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send("203.0.113.7"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("203.0.113.8"), "other callers behind the proxy keep their own budget")
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/orders", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_UpstreamTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer backend.Close()

	target, err := url.Parse(backend.URL)
	require.NoError(t, err)
	env := newTestEnv(t, NewProxy(target, nil), 50*time.Millisecond)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/menu", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestServer_UpstreamDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)
	backend.Close()

	env := newTestEnv(t, NewProxy(target, nil), time.Second)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/menu", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_OpsPeekAndReset(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)
	adminToken := env.token(t, "admin-1", auth.RoleSuperAdmin)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/menu", nil)
		req.RemoteAddr = "198.51.100.7:1000"
		require.Equal(t, http.StatusOK, env.do(req).Code)
	}

	peek := func() ratelimit.Status {
		req := httptest.NewRequest(http.MethodGet, "/internal/ratelimit/api/ip:198.51.100.7", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		var st ratelimit.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		return st
	}

	st := peek()
	assert.True(t, st.Active)
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, 98, st.Remaining)

	req := httptest.NewRequest(http.MethodDelete, "/internal/ratelimit/api/ip:198.51.100.7", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusNoContent, env.do(req).Code)

	st = peek()
	assert.False(t, st.Active)
	assert.Equal(t, int64(0), st.Count)
}

func TestServer_OpsRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/internal/ratelimit/api/ip:198.51.100.7", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "mgr-1", auth.RoleManager))
	assert.Equal(t, http.StatusForbidden, env.do(req).Code)
}

func TestServer_AuditTrail(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	denied := httptest.NewRequest(http.MethodDelete, "/internal/ratelimit/login/ip:203.0.113.1", nil)
	denied.Header.Set("Authorization", "Bearer "+env.token(t, "cust-9", auth.RoleCustomer))
	require.Equal(t, http.StatusForbidden, env.do(denied).Code)

	reset := httptest.NewRequest(http.MethodDelete, "/internal/ratelimit/login/ip:203.0.113.1", nil)
	reset.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", auth.RoleSuperAdmin))
	require.Equal(t, http.StatusNoContent, env.do(reset).Code)

	events, err := env.trail.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, audit.EventTypeAccessDenied, events[0].EventType)
	assert.Equal(t, "cust-9", events[0].Subject)
	assert.Equal(t, "ops.ratelimit.reset", events[0].Route)

	assert.Equal(t, audit.EventTypeCounterReset, events[1].EventType)
	assert.Equal(t, audit.EventStatusSuccess, events[1].Status)
	assert.Equal(t, "admin-1", events[1].Subject)
	assert.Equal(t, map[string]string{"policy": "login", "key": "ip:203.0.113.1"}, events[1].Details)
}

func TestServer_OpsUnknownPolicy(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/internal/ratelimit/burst/ip:1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", auth.RoleSuperAdmin))
	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MetricsLabelledByRoute(t *testing.T) {
	env := newTestEnv(t, nil, time.Second)

	env.do(httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/menu", nil))
	env.do(httptest.NewRequest(http.MethodPost, "/orders", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "menus.get", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("POST", "orders.create", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.StageRejectionsTotal.WithLabelValues(pipeline.StageAuthenticate, string(accesserr.KindMissingToken))))
}

func TestServer_RequestContextDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	env := newTestEnv(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}), 3*time.Second)

	env.do(httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/menu", nil).WithContext(context.Background()))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(3*time.Second), deadline, time.Second)
}
