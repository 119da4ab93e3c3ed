// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the gate must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/gatekeeper/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, id)
//	id, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import (
	"context"
	"time"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: pipeline authenticate stage (pkg/pipeline/stages.go)
	// Required by: authorize stage, handler collaborators
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, rejection logs
	// Type: string
	RequestIDKey Key = "request_id"

	// SubjectKey contains the authenticated subject id
	// Set by: pipeline after a successful run
	// Used by: Logger
	// Type: string
	SubjectKey Key = "subject"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: pipeline stages and handlers that need request-scoped logging
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RouteKey contains the route name the request matched
	// Set by: api.Server when registering a route
	// Used by: metrics and logs
	// Type: string
	RouteKey Key = "route"

	// RequestStartTimeKey contains request start timestamp
	// Set by: httputil.LoggingMiddleware
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"

	// ClientIPKey contains the resolved caller address
	// Set by: httputil.ClientIPMiddleware
	// Used by: rate limit keys, request logs, audit events
	// Type: string
	ClientIPKey Key = "client_ip"
)

// WithIdentity adds an identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSubject adds the authenticated subject to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithRoute adds the matched route name to the context
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, start)
}

// WithClientIP adds the resolved caller address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the resolved caller address from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSubject retrieves the authenticated subject from context
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(SubjectKey).(string); ok {
		return subject
	}
	return ""
}

// GetRoute retrieves the matched route name from context
func GetRoute(ctx context.Context) string {
	if route, ok := ctx.Value(RouteKey).(string); ok {
		return route
	}
	return ""
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(RequestStartTimeKey).(time.Time)
	return start, ok
}
