package pipeline

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/validation"
)

// Request is the per-request state the stages share
type Request struct {
	HTTP     *http.Request
	ClientIP string
	// Identity is set by an authentication stage
	Identity *auth.Identity
	// RateLimit is set by the rate limit stage
	RateLimit *ratelimit.Decision

	payload       *validation.Payload
	payloadErr    error
	payloadLoaded bool
}

// NewRequest wraps an inbound request
func NewRequest(r *http.Request) *Request {
	return &Request{
		HTTP:     r,
		ClientIP: httputil.ClientIP(r),
	}
}

// Payload parses the request fields on first use
func (r *Request) Payload() (*validation.Payload, error) {
	if !r.payloadLoaded {
		r.payload, r.payloadErr = validation.FromRequest(r.HTTP)
		r.payloadLoaded = true
	}
	return r.payload, r.payloadErr
}

// Result is what a stage returns: continue, or reject with a typed error
type Result struct {
	rejection *accesserr.Error
}

// Continue lets the request proceed to the next stage
func Continue() Result {
	return Result{}
}

// Reject stops the pipeline
func Reject(err *accesserr.Error) Result {
	return Result{rejection: err}
}

// Rejected reports whether the stage stopped the request
func (r Result) Rejected() bool {
	return r.rejection != nil
}

// Err returns the rejection, nil on Continue
func (r Result) Err() *accesserr.Error {
	return r.rejection
}

// Stage is one step of a pipeline
type Stage interface {
	Name() string
	Run(ctx context.Context, req *Request) Result
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, req *Request) Result
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(ctx context.Context, req *Request) Result { return s.fn(ctx, req) }

// NewStage adapts a function into a Stage
func NewStage(name string, fn func(ctx context.Context, req *Request) Result) Stage {
	return funcStage{name: name, fn: fn}
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger logs rejections at debug and store-degraded admits at warn
func WithLogger(logger *observability.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics times stages and counts rejections
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = metrics }
}

// WithTracer overrides the tracer used for stage spans
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = tracer }
}

// WithAudit records every rejection in the audit trail
func WithAudit(logger audit.Logger) Option {
	return func(p *Pipeline) { p.audit = logger }
}

// Pipeline runs its stages in order and stops at the first rejection
type Pipeline struct {
	name    string
	stages  []Stage
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	audit   audit.Logger
}

// New creates a pipeline for the named route
func New(name string, stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:   name,
		stages: stages,
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the route name
func (p *Pipeline) Name() string {
	return p.name
}

// StageNames returns the stage names in run order
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the stages. The first rejection is returned and no later
// stage runs.
func (p *Pipeline) Run(ctx context.Context, req *Request) *accesserr.Error {
	for _, stage := range p.stages {
		stageCtx, span := p.tracer.Start(ctx, "gate."+stage.Name(),
			trace.WithAttributes(
				attribute.String("gate.route", p.name),
				attribute.String("gate.stage", stage.Name()),
			),
		)

		start := time.Now()
		res := stage.Run(stageCtx, req)
		elapsed := time.Since(start)

		if res.Rejected() {
			kind := string(res.Err().Kind)
			p.metrics.ObserveStage(stage.Name(), elapsed, kind)
			span.SetAttributes(attribute.String("gate.rejection", kind))
			span.SetStatus(codes.Error, res.Err().Message)
			span.End()
			return res.Err()
		}

		p.metrics.ObserveStage(stage.Name(), elapsed, "")
		span.End()
	}
	return nil
}

// Handler gates next behind the pipeline. Admitted requests carry the
// identity, if any, in their context.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := contextkeys.WithRoute(r.Context(), p.name)
		r = r.WithContext(ctx)
		req := NewRequest(r)

		rej := p.Run(ctx, req)
		setRateLimitHeaders(w, req.RateLimit, time.Now())

		if rej != nil {
			if p.logger != nil {
				observability.UpdateLoggerWithTraceContext(ctx, p.logger).WithFields(map[string]interface{}{
					"route":      p.name,
					"kind":       string(rej.Kind),
					"client_ip":  req.ClientIP,
					"request_id": contextkeys.GetRequestID(ctx),
				}).Debug("Request rejected")
			}
			p.recordRejection(ctx, req, rej)
			httputil.WriteRejection(w, rej)
			return
		}

		if req.RateLimit != nil && req.RateLimit.Degraded && p.logger != nil {
			p.logger.WithField("route", p.name).Warn("Admitted without rate limiting, counter store unavailable")
		}

		if req.Identity != nil {
			ctx = auth.WithIdentity(ctx, req.Identity)
			ctx = contextkeys.WithSubject(ctx, req.Identity.Subject())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *Pipeline) recordRejection(ctx context.Context, req *Request, rej *accesserr.Error) {
	if p.audit == nil {
		return
	}
	event := audit.NewRejectionEvent(rej)
	event.Route = p.name
	event.Method = req.HTTP.Method
	event.Path = req.HTTP.URL.Path
	event.ClientIP = req.ClientIP
	event.RequestID = contextkeys.GetRequestID(ctx)
	if req.Identity != nil {
		event.Subject = req.Identity.Subject()
		event.Role = string(req.Identity.Role())
	}
	if err := p.audit.Log(ctx, event); err != nil && p.logger != nil {
		p.logger.WithError(err).WithField("route", p.name).Error("Failed to write audit event")
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision, now time.Time) {
	if d == nil || d.Degraded || d.Limit == 0 {
		return
	}
	reset := d.ResetAt.Sub(now)
	if reset < 0 {
		reset = 0
	}
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("RateLimit-Reset", strconv.FormatInt(httputil.RetryAfterSeconds(reset), 10))
}
