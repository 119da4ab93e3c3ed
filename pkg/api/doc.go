// Package api is the HTTP front of the gate.
//
// # Overview
//
// Server mounts every route of the route table on a gorilla/mux router. Each
// route gets its own pipeline (rate limit, authenticate, authorize, validate)
// and admitted requests are handed to the upstream handler:
//
//	srv, err := api.NewServer(compiled, api.Options{
//		Deps:           deps,
//		Upstream:       api.NewProxy(upstreamURL, logger),
//		RequestTimeout: 10 * time.Second,
//	})
//
// The proxy sets X-Auth-Subject and X-Auth-Role from the verified identity
// and drops any copies the client sent. Without an upstream, EchoHandler
// answers with the identity the gate attached.
//
// # Ops Endpoints
//
//	GET    /internal/ratelimit/{policy}/{key}   counter state
//	DELETE /internal/ratelimit/{policy}/{key}   reset the counter
//
// Both are gated like any other route and require the super_admin role.
//
// # Middleware
//
// Outermost first: OpenTelemetry (otelhttp), request id, logging, panic
// recovery, request timeout, body size limit. Per route, the route name is
// put in the context before the Prometheus middleware so metrics are labelled
// by route rather than raw path.
package api
