package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseRole("admin")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	roles := Roles()
	assert.Len(t, roles, 10)
	assert.Equal(t, RoleAreaManager, roles[0])
}

func TestNewIdentity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 500, time.FixedZone("IST", 19800))

	id, err := NewIdentity("cust-1", RoleCustomer, now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "cust-1", id.Subject())
	assert.Equal(t, RoleCustomer, id.Role())
	assert.Equal(t, time.UTC, id.IssuedAt().Location())
	assert.Equal(t, 0, id.IssuedAt().Nanosecond())
	assert.Equal(t, "cust-1(customer)", id.String())

	_, err = NewIdentity(" ", RoleCustomer, now, now.Add(time.Hour))
	assert.Error(t, err)
	_, err = NewIdentity("cust-1", Role("owner"), now, now.Add(time.Hour))
	assert.Error(t, err)
	_, err = NewIdentity("cust-1", RoleCustomer, now, now)
	assert.Error(t, err)
}

func TestNewIdentity_SubSecondLifetime(t *testing.T) {
	issued := time.Unix(1000, 100*int64(time.Millisecond))

	// 1000.1s to 1000.6s collapses to the same whole second once encoded
	_, err := NewIdentity("cust-1", RoleCustomer, issued, issued.Add(500*time.Millisecond))
	assert.Error(t, err)

	// 1000.1s to 1001.0s still spans a second boundary
	id, err := NewIdentity("cust-1", RoleCustomer, issued, issued.Add(900*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, id.ExpiresAt().After(id.IssuedAt()))
}
