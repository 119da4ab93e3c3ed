package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
)

func identity(t *testing.T, role auth.Role) *auth.Identity {
	t.Helper()
	now := time.Now()
	id, err := auth.NewIdentity("subject-1", role, now, now.Add(time.Hour))
	require.NoError(t, err)
	return id
}

func TestAuthorize(t *testing.T) {
	authz := NewAuthorizer()

	tests := []struct {
		name     string
		role     auth.Role
		req      Requirement
		wantKind accesserr.Kind
	}{
		{"manager on admins", auth.RoleManager, Admins, ""},
		{"finance on staff", auth.RoleFinance, Staff, ""},
		{"customer on staff", auth.RoleCustomer, Staff, accesserr.KindForbidden},
		{"support on admins", auth.RoleSupport, Admins, accesserr.KindForbidden},
		{"delivery partner on all roles", auth.RoleDeliveryPartner, AllRoles, ""},
		{"super admin on empty requirement", auth.RoleSuperAdmin, Requirement{}, accesserr.KindForbidden},
		{"super admin not implied", auth.RoleSuperAdmin, NewRequirement(auth.RoleHR), accesserr.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(identity(t, tt.role), tt.req)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, accesserr.KindOf(err))
		})
	}
}

func TestAuthorize_NilIdentity(t *testing.T) {
	err := NewAuthorizer().Authorize(nil, AllRoles)
	assert.ErrorIs(t, err, accesserr.ErrAuthenticationRequired)
}

func TestGroups(t *testing.T) {
	assert.Len(t, Staff.Roles(), 7)
	assert.Equal(t, []auth.Role{auth.RoleManager, auth.RoleSuperAdmin}, Admins.Roles())
	assert.Len(t, AllRoles.Roles(), len(auth.Roles()))
	assert.False(t, Staff.Allows(auth.RoleCustomer))
	assert.True(t, Requirement{}.Empty())
}

func TestParseRequirement(t *testing.T) {
	req, err := ParseRequirement([]string{"admins", "finance"})
	require.NoError(t, err)
	assert.Equal(t, []auth.Role{auth.RoleFinance, auth.RoleManager, auth.RoleSuperAdmin}, req.Roles())

	req, err = ParseRequirement([]string{"*"})
	require.NoError(t, err)
	assert.True(t, req.Allows(auth.RoleRestaurant))

	_, err = ParseRequirement([]string{"chef"})
	assert.Error(t, err)
}

func TestRequirement_Union(t *testing.T) {
	req := Admins.Union(NewRequirement(auth.RoleCustomer))
	assert.True(t, req.Allows(auth.RoleCustomer))
	assert.True(t, req.Allows(auth.RoleManager))
	assert.Equal(t, "[customer,manager,super_admin]", req.String())
}
