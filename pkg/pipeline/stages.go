package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/validation"
)

// Stage names, also used as span and metric labels
const (
	StageRateLimit    = "rate_limit"
	StageAuthenticate = "authenticate"
	StageAuthorize    = "authorize"
	StageValidate     = "validate"
)

// SubjectResolver returns the caller's subject before authentication has run,
// or "" when there is none
type SubjectResolver func(r *http.Request) string

// RateLimit counts the request against policy. Subject-keyed policies use
// subjects to key on the caller, falling back to the client IP.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy, subjects SubjectResolver) Stage {
	return NewStage(StageRateLimit, func(ctx context.Context, req *Request) Result {
		src := ratelimit.KeySource{ClientIP: req.ClientIP}
		if policy.Key.NeedsSubject() && subjects != nil {
			src.Subject = subjects(req.HTTP)
		}
		if policy.Key.Field() != "" {
			src.Field = func(name string) (string, bool) {
				p, err := req.Payload()
				if err != nil {
					return "", false
				}
				return p.String(name)
			}
		}

		d, err := limiter.Check(ctx, policy.Name, policy.Key.Resolve(src))
		req.RateLimit = &d
		if err != nil {
			return rejectFrom(err, accesserr.KindUnavailable, "rate limiting temporarily unavailable")
		}
		return Continue()
	})
}

// Authenticate requires a valid bearer token
func Authenticate(authn *auth.Authenticator) Stage {
	return NewStage(StageAuthenticate, func(_ context.Context, req *Request) Result {
		id, err := authn.Authenticate(req.HTTP)
		if err != nil {
			return rejectFrom(err, accesserr.KindInvalidToken, "invalid token")
		}
		req.Identity = id
		return Continue()
	})
}

// OptionalAuthenticate attaches an identity when a valid token is present and
// never rejects
func OptionalAuthenticate(authn *auth.Authenticator) Stage {
	return NewStage(StageAuthenticate, func(_ context.Context, req *Request) Result {
		req.Identity = authn.AuthenticateOptional(req.HTTP)
		return Continue()
	})
}

// Authorize checks the identity's role against requirement
func Authorize(authz *rbac.Authorizer, requirement rbac.Requirement) Stage {
	return NewStage(StageAuthorize, func(_ context.Context, req *Request) Result {
		if err := authz.Authorize(req.Identity, requirement); err != nil {
			return rejectFrom(err, accesserr.KindForbidden, "forbidden")
		}
		return Continue()
	})
}

// Validate runs rules over the request payload
func Validate(rules validation.RuleSet) Stage {
	return NewStage(StageValidate, func(_ context.Context, req *Request) Result {
		p, err := req.Payload()
		if err != nil {
			msg := "body could not be read"
			if errors.Is(err, validation.ErrBodyNotObject) {
				msg = "body must be a JSON object"
			}
			return Reject(accesserr.ValidationFailed([]accesserr.Failure{{Field: "body", Message: msg}}))
		}
		if err := validation.Validate(p, rules); err != nil {
			return rejectFrom(err, accesserr.KindValidationFailed, "validation failed")
		}
		return Continue()
	})
}

// rejectFrom keeps typed rejections as they are and wraps anything else
func rejectFrom(err error, fallback accesserr.Kind, msg string) Result {
	if rej, ok := accesserr.As(err); ok {
		return Reject(rej)
	}
	return Reject(accesserr.Wrap(fallback, msg, err))
}
