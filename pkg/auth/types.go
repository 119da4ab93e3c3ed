package auth

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role represents a platform role carried in the token
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleManager         Role = "manager"
	RoleSupport         Role = "support"
	RoleAreaManager     Role = "area_manager"
	RoleTeamLead        Role = "team_lead"
	RoleFinance         Role = "finance"
	RoleHR              Role = "hr"
	RoleCustomer        Role = "customer"
	RoleRestaurant      Role = "restaurant"
	RoleDeliveryPartner Role = "delivery_partner"
)

var knownRoles = map[Role]struct{}{
	RoleSuperAdmin:      {},
	RoleManager:         {},
	RoleSupport:         {},
	RoleAreaManager:     {},
	RoleTeamLead:        {},
	RoleFinance:         {},
	RoleHR:              {},
	RoleCustomer:        {},
	RoleRestaurant:      {},
	RoleDeliveryPartner: {},
}

// Valid reports whether r is one of the platform roles
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a claim or config value into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Roles returns every platform role in lexical order
func Roles() []Role {
	out := make([]Role, 0, len(knownRoles))
	for r := range knownRoles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Identity is the verified subject/role pair attached to a request.
// It has no setters; a new request always gets a new Identity.
type Identity struct {
	subject   string
	role      Role
	issuedAt  time.Time
	expiresAt time.Time
}

// NewIdentity builds an identity for encoding. Decoded identities come from TokenCodec.Decode.
func NewIdentity(subject string, role Role, issuedAt, expiresAt time.Time) (*Identity, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	// Claims carry whole seconds, so compare what will actually be encoded
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	expiresAt = expiresAt.UTC().Truncate(time.Second)
	if !expiresAt.After(issuedAt) {
		return nil, fmt.Errorf("expiry must be at least one whole second after issued-at")
	}
	return &Identity{
		subject:   subject,
		role:      role,
		issuedAt:  issuedAt,
		expiresAt: expiresAt,
	}, nil
}

// Subject returns the subject id
func (i *Identity) Subject() string { return i.subject }

// Role returns the identity's role
func (i *Identity) Role() Role { return i.role }

// IssuedAt returns when the token was issued
func (i *Identity) IssuedAt() time.Time { return i.issuedAt }

// ExpiresAt returns the token expiry
func (i *Identity) ExpiresAt() time.Time { return i.expiresAt }

func (i *Identity) String() string {
	return fmt.Sprintf("%s(%s)", i.subject, i.role)
}
