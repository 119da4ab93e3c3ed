package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/pipeline"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/validation"
)

// OpsRateLimitPath is the counter inspection endpoint
const OpsRateLimitPath = "/internal/ratelimit/{policy}/{key}"

// registerOps mounts the counter endpoints. They go through the same gate as
// every other route and are restricted to super admins.
func (s *Server) registerOps() error {
	superAdmin := rbac.NewRequirement(auth.RoleSuperAdmin)
	rules := validation.RuleSet{
		validation.Required("policy", validation.OneOf(s.deps.Limiter.Registry().Names()...)),
		validation.Required("key", validation.Length(1, 256)),
	}

	peek := pipeline.Spec{
		Name:    "ops.ratelimit.peek",
		Policy:  ratelimit.PolicyAPI,
		Auth:    pipeline.AuthRequired,
		Require: &superAdmin,
		Rules:   rules,
	}
	if err := s.handle(http.MethodGet, OpsRateLimitPath, peek, http.HandlerFunc(s.peekCounter)); err != nil {
		return err
	}

	reset := peek
	reset.Name = "ops.ratelimit.reset"
	return s.handle(http.MethodDelete, OpsRateLimitPath, reset, http.HandlerFunc(s.resetCounter))
}

func counterPath(w http.ResponseWriter, r *http.Request) (policy, key string, ok bool) {
	if policy, ok = httputil.ParsePathStringOrError(w, r, "policy"); !ok {
		return "", "", false
	}
	key, ok = httputil.ParsePathStringOrError(w, r, "key")
	return policy, key, ok
}

// peekCounter handles GET /internal/ratelimit/{policy}/{key}
func (s *Server) peekCounter(w http.ResponseWriter, r *http.Request) {
	policy, key, ok := counterPath(w, r)
	if !ok {
		return
	}
	status, err := s.deps.Limiter.Peek(r.Context(), policy, key)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to read rate limit counter")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "rate limit store unavailable")
		return
	}
	httputil.WriteSuccess(w, status)
}

// resetCounter handles DELETE /internal/ratelimit/{policy}/{key}
func (s *Server) resetCounter(w http.ResponseWriter, r *http.Request) {
	policy, key, ok := counterPath(w, r)
	if !ok {
		return
	}
	if err := s.deps.Limiter.Reset(r.Context(), policy, key); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to reset rate limit counter")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "rate limit store unavailable")
		return
	}

	id := auth.FromContext(r.Context())
	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"policy": policy,
		"key":    key,
		"by":     id.Subject(),
	}).Info("Rate limit counter reset")

	if s.deps.Audit != nil {
		event := &audit.Event{
			Timestamp: time.Now().UTC(),
			EventType: audit.EventTypeCounterReset,
			Status:    audit.EventStatusSuccess,
			Subject:   id.Subject(),
			Role:      string(id.Role()),
			Route:     contextkeys.GetRoute(r.Context()),
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  httputil.ClientIP(r),
			RequestID: contextkeys.GetRequestID(r.Context()),
			Message:   "rate limit counter reset",
			Details:   map[string]string{"policy": policy, "key": key},
		}
		if err := s.deps.Audit.Log(r.Context(), event); err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("Failed to write audit event")
		}
	}
	httputil.WriteNoContent(w)
}
