package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/auth"
)

// Requirement is the set of roles allowed to reach an operation.
// The zero value admits nobody.
type Requirement struct {
	roles map[auth.Role]struct{}
}

// NewRequirement builds a requirement from an explicit role list
func NewRequirement(roles ...auth.Role) Requirement {
	set := make(map[auth.Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Requirement{roles: set}
}

var (
	// Staff covers every internal role
	Staff = NewRequirement(
		auth.RoleSuperAdmin,
		auth.RoleManager,
		auth.RoleSupport,
		auth.RoleAreaManager,
		auth.RoleTeamLead,
		auth.RoleFinance,
		auth.RoleHR,
	)

	// Admins covers platform administrators
	Admins = NewRequirement(auth.RoleSuperAdmin, auth.RoleManager)

	// AllRoles admits any authenticated caller
	AllRoles = NewRequirement(auth.Roles()...)
)

// groups are the names accepted by ParseRequirement besides individual roles
var groups = map[string]Requirement{
	"staff":  Staff,
	"admins": Admins,
	"all":    AllRoles,
	"*":      AllRoles,
}

// ParseRequirement resolves a list of role and group names
func ParseRequirement(names []string) (Requirement, error) {
	var roles []auth.Role
	for _, name := range names {
		name = strings.TrimSpace(name)
		if g, ok := groups[strings.ToLower(name)]; ok {
			roles = append(roles, g.Roles()...)
			continue
		}
		role, err := auth.ParseRole(name)
		if err != nil {
			return Requirement{}, fmt.Errorf("invalid requirement: %w", err)
		}
		roles = append(roles, role)
	}
	return NewRequirement(roles...), nil
}

// Allows reports whether role is in the requirement
func (r Requirement) Allows(role auth.Role) bool {
	_, ok := r.roles[role]
	return ok
}

// Empty reports whether the requirement admits nobody
func (r Requirement) Empty() bool {
	return len(r.roles) == 0
}

// Union returns a requirement admitting the roles of both
func (r Requirement) Union(other Requirement) Requirement {
	return NewRequirement(append(r.Roles(), other.Roles()...)...)
}

// Roles returns the admitted roles in lexical order
func (r Requirement) Roles() []auth.Role {
	out := make([]auth.Role, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r Requirement) String() string {
	roles := r.Roles()
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return "[" + strings.Join(names, ",") + "]"
}
