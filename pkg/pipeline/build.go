package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/validation"
)

// AuthMode selects how a route treats the bearer token
type AuthMode string

const (
	AuthNone     AuthMode = "none"
	AuthOptional AuthMode = "optional"
	AuthRequired AuthMode = "required"
)

// ParseAuthMode parses an auth mode, "" meaning none
func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return AuthNone, nil
	case AuthNone, AuthOptional, AuthRequired:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

// Spec describes the gate in front of one route
type Spec struct {
	Name string
	// Policy is the rate limit policy name; empty disables rate limiting
	Policy string
	Auth   AuthMode
	// Require restricts the route to these roles; nil means any caller
	Require *rbac.Requirement
	Rules   validation.RuleSet
}

// Deps are the shared collaborators stages are built from
type Deps struct {
	Limiter       *ratelimit.Limiter
	Authenticator *auth.Authenticator
	Authorizer    *rbac.Authorizer
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Tracer        trace.Tracer
	// Audit receives an event for every rejection; optional
	Audit audit.Logger
}

// Build composes the pipeline for spec in the fixed order
// rate limit, authenticate, authorize, validate. Absent stages are skipped.
func Build(spec Spec, deps Deps) (*Pipeline, error) {
	if spec.Name == "" {
		return nil, errors.New("route name is required")
	}

	var stages []Stage

	if spec.Policy != "" {
		if deps.Limiter == nil {
			return nil, fmt.Errorf("route %s: rate limit policy %s set but no limiter", spec.Name, spec.Policy)
		}
		policy, err := deps.Limiter.Policy(spec.Policy)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", spec.Name, err)
		}
		var subjects SubjectResolver
		if deps.Authenticator != nil {
			subjects = deps.Authenticator.PeekSubject
		}
		stages = append(stages, RateLimit(deps.Limiter, policy, subjects))
	}

	mode := spec.Auth
	if mode == "" {
		mode = AuthNone
	}
	switch mode {
	case AuthNone:
	case AuthOptional, AuthRequired:
		if deps.Authenticator == nil {
			return nil, fmt.Errorf("route %s: auth %s requires an authenticator", spec.Name, mode)
		}
		if mode == AuthRequired {
			stages = append(stages, Authenticate(deps.Authenticator))
		} else {
			stages = append(stages, OptionalAuthenticate(deps.Authenticator))
		}
	default:
		return nil, fmt.Errorf("route %s: unknown auth mode %q", spec.Name, mode)
	}

	if spec.Require != nil {
		if mode != AuthRequired {
			return nil, fmt.Errorf("route %s: role requirement needs auth %s", spec.Name, AuthRequired)
		}
		if spec.Require.Empty() {
			return nil, fmt.Errorf("route %s: role requirement admits no role", spec.Name)
		}
		authz := deps.Authorizer
		if authz == nil {
			authz = rbac.NewAuthorizer()
		}
		stages = append(stages, Authorize(authz, *spec.Require))
	}

	if len(spec.Rules) > 0 {
		stages = append(stages, Validate(spec.Rules))
	}

	opts := []Option{WithLogger(deps.Logger), WithMetrics(deps.Metrics)}
	if deps.Tracer != nil {
		opts = append(opts, WithTracer(deps.Tracer))
	}
	if deps.Audit != nil {
		opts = append(opts, WithAudit(deps.Audit))
	}
	return New(spec.Name, stages, opts...), nil
}
