// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("policy", "login").Info("Rate limit store ready")
//
// Request-scoped logging reads the request id, subject and route from the context:
//
//	observability.FromContext(r.Context()).Warn("Rejected")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveStage("authenticate", d, "")
//
// All Record/Observe helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "gatekeeper",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/pipeline: per-stage spans and timings
package observability
