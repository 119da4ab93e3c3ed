package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const (
	// AuthorizationHeader carries the bearer credential
	AuthorizationHeader = "Authorization"
	bearerScheme        = "Bearer"
)

// Authenticator extracts and verifies the bearer token of a request
type Authenticator struct {
	codec   *TokenCodec
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAuthenticator creates a new authenticator. logger and metrics may be nil.
func NewAuthenticator(codec *TokenCodec, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		codec:   codec,
		logger:  logger,
		metrics: metrics,
	}
}

// Authenticate returns the identity of the request or a MissingToken,
// InvalidToken or Expired rejection.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	token, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(token)
}

// AuthenticateOptional is the anonymous-friendly mode: any failure yields a nil
// identity instead of a rejection. Bad credentials are still logged because a
// tampered or stale token on an optional route is worth seeing.
func (a *Authenticator) AuthenticateOptional(r *http.Request) *Identity {
	id, err := a.Authenticate(r)
	if err == nil {
		return id
	}
	if r.Header.Get(AuthorizationHeader) == "" {
		return nil
	}

	kind := accesserr.KindOf(err)
	if a.metrics != nil {
		a.metrics.RecordOptionalAuthAnomaly(string(kind))
	}
	if a.logger != nil {
		a.logger.WithFields(map[string]interface{}{
			"kind":       string(kind),
			"request_id": contextkeys.GetRequestID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Warn("Ignoring bad credential on optional-auth route")
	}
	return nil
}

// PeekSubject returns the subject of a valid bearer token, or "" when there is
// none. Nothing is logged or counted; the request is authenticated properly
// later in the pipeline.
func (a *Authenticator) PeekSubject(r *http.Request) string {
	id, err := a.Authenticate(r)
	if err != nil {
		return ""
	}
	return id.Subject()
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" header
func ExtractBearer(r *http.Request) (string, error) {
	values := r.Header.Values(AuthorizationHeader)
	if len(values) == 0 || values[0] == "" {
		return "", accesserr.New(accesserr.KindMissingToken, "missing authorization header")
	}
	if len(values) > 1 {
		return "", accesserr.New(accesserr.KindMissingToken, "multiple authorization headers")
	}

	parts := strings.SplitN(values[0], " ", 2)
	if len(parts) != 2 || parts[0] != bearerScheme || parts[1] == "" || strings.ContainsAny(parts[1], " \t") {
		return "", accesserr.New(accesserr.KindMissingToken, "invalid authorization header format")
	}
	return parts[1], nil
}

// WithIdentity attaches an identity to the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, id)
}

// FromContext extracts the identity attached by the pipeline, if any
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}
