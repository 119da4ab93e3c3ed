package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	StageDuration        *prometheus.HistogramVec
	StageRejectionsTotal *prometheus.CounterVec

	// Rate limit metrics
	RateLimitDecisionsTotal   *prometheus.CounterVec
	RateLimitStoreErrorsTotal *prometheus.CounterVec
	MemoryStoreKeys           prometheus.Gauge
	MemoryStoreSweptTotal     prometheus.Counter

	// Redis metrics
	RedisCommandsTotal   *prometheus.CounterVec
	RedisCommandDuration *prometheus.HistogramVec

	// Authentication metrics
	OptionalAuthAnomaliesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"stage"},
		),
		StageRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_stage_rejections_total",
				Help: "Total number of requests rejected by a pipeline stage",
			},
			[]string{"stage", "kind"},
		),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_ratelimit_decisions_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"policy", "outcome"},
		),
		RateLimitStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_ratelimit_store_errors_total",
				Help: "Total number of counter store failures",
			},
			[]string{"store", "policy"},
		),
		MemoryStoreKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_ratelimit_memory_keys",
				Help: "Number of live counters in the in-memory store",
			},
		),
		MemoryStoreSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_ratelimit_memory_swept_total",
				Help: "Total number of elapsed counters removed by sweeps",
			},
		),

		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),

		OptionalAuthAnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_optional_auth_anomalies_total",
				Help: "Bad credentials seen on optional-auth routes",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StageDuration,
		m.StageRejectionsTotal,
		m.RateLimitDecisionsTotal,
		m.RateLimitStoreErrorsTotal,
		m.MemoryStoreKeys,
		m.MemoryStoreSweptTotal,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.OptionalAuthAnomaliesTotal,
	)

	return m
}

// ObserveStage records how long a pipeline stage ran and, if it rejected, why.
// A nil receiver is a no-op so callers may run without metrics.
func (m *Metrics) ObserveStage(stage string, duration time.Duration, rejectedKind string) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if rejectedKind != "" {
		m.StageRejectionsTotal.WithLabelValues(stage, rejectedKind).Inc()
	}
}

// RecordRateLimitDecision counts an allow or reject outcome for a policy
func (m *Metrics) RecordRateLimitDecision(policy string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if allowed {
		outcome = "allowed"
	}
	m.RateLimitDecisionsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordStoreError counts a counter store failure
func (m *Metrics) RecordStoreError(store, policy string) {
	if m == nil {
		return
	}
	m.RateLimitStoreErrorsTotal.WithLabelValues(store, policy).Inc()
}

// RecordRedisCommand records the outcome and latency of a Redis round trip
func (m *Metrics) RecordRedisCommand(command string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RedisCommandsTotal.WithLabelValues(command, status).Inc()
	m.RedisCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordMemoryStore updates the in-memory store gauges after a sweep
func (m *Metrics) RecordMemoryStore(keys, swept int) {
	if m == nil {
		return
	}
	m.MemoryStoreKeys.Set(float64(keys))
	m.MemoryStoreSweptTotal.Add(float64(swept))
}

// RecordOptionalAuthAnomaly counts a rejected credential on an optional-auth route
func (m *Metrics) RecordOptionalAuthAnomaly(kind string) {
	if m == nil {
		return
	}
	m.OptionalAuthAnomaliesTotal.WithLabelValues(kind).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by the route name in the context, not the raw path.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := contextkeys.GetRoute(r.Context())
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
