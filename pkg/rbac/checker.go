package rbac

import (
	"fmt"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
)

// Authorizer decides whether an authenticated identity satisfies a requirement
type Authorizer struct{}

// NewAuthorizer creates a new authorizer
func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Authorize returns nil when id's role is in req. A nil identity yields
// AuthenticationRequired; any other miss yields Forbidden.
func (a *Authorizer) Authorize(id *auth.Identity, req Requirement) error {
	if id == nil {
		return accesserr.New(accesserr.KindAuthenticationRequired, "authentication required")
	}
	if !req.Allows(id.Role()) {
		return accesserr.New(accesserr.KindForbidden, fmt.Sprintf("role %s may not access this resource", id.Role()))
	}
	return nil
}
