package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/pipeline"
	"github.com/platinummonkey/gatekeeper/pkg/routes"
)

// Options configures a Server
type Options struct {
	// Deps are shared by every route pipeline. Logger is required.
	Deps pipeline.Deps
	// Upstream handles admitted requests; EchoHandler when nil
	Upstream http.Handler
	// RequestTimeout bounds each request, upstream call included
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// TrustedProxies may set the caller address through forwarding headers;
	// nil trusts nobody
	TrustedProxies *httputil.TrustedProxies
}

// Server routes inbound requests through their pipelines
type Server struct {
	router   *mux.Router
	handler  http.Handler
	deps     pipeline.Deps
	upstream http.Handler
	names    []string
}

// NewServer registers every compiled route and the ops endpoints
func NewServer(table []routes.Compiled, opts Options) (*Server, error) {
	if opts.Deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Deps.Limiter == nil {
		return nil, errors.New("limiter is required")
	}

	s := &Server{
		router:   mux.NewRouter(),
		deps:     opts.Deps,
		upstream: opts.Upstream,
	}
	if s.upstream == nil {
		s.upstream = EchoHandler()
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFoundError(w, "no such route")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	for _, c := range table {
		if err := s.handle(c.Route.Method, c.Route.Path, c.Spec, s.upstream); err != nil {
			return nil, err
		}
	}
	if err := s.registerOps(); err != nil {
		return nil, err
	}

	logger := opts.Deps.Logger
	chain := httputil.Chain(
		httputil.ClientIPMiddleware(opts.TrustedProxies),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.TimeoutMiddleware(opts.RequestTimeout),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "gatekeeper")

	logger.WithField("routes", len(s.names)).Info("Routes registered")
	return s, nil
}

// handle builds the pipeline for spec and mounts it in front of next
func (s *Server) handle(method, path string, spec pipeline.Spec, next http.Handler) error {
	p, err := pipeline.Build(spec, s.deps)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	h := p.Handler(next)
	if s.deps.Metrics != nil {
		h = observability.HTTPMetricsMiddleware(s.deps.Metrics)(h)
	}
	h = withRoute(spec.Name, h)

	s.router.Handle(path, h).Methods(method).Name(spec.Name)
	s.names = append(s.names, spec.Name)
	s.deps.Logger.WithFields(map[string]interface{}{
		"route":  spec.Name,
		"method": method,
		"path":   path,
		"stages": p.StageNames(),
	}).Debug("Route registered")
	return nil
}

// withRoute puts the route name in the context ahead of the metrics middleware
// and names the server span after it
func withRoute(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.SpanFromContext(r.Context()).SetName(r.Method + " " + name)
		next.ServeHTTP(w, r.WithContext(contextkeys.WithRoute(r.Context(), name)))
	})
}

// Routes returns the registered route names in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.names...)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
