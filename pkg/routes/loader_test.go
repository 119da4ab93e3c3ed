package routes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/pipeline"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/validation"
)

func defaultRegistry(t *testing.T) *ratelimit.Registry {
	t.Helper()
	r, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
	require.NoError(t, err)
	return r
}

func TestDefault_Compiles(t *testing.T) {
	compiled, err := Default().Compile(defaultRegistry(t))
	require.NoError(t, err)
	require.NotEmpty(t, compiled)

	byName := make(map[string]Compiled, len(compiled))
	for _, c := range compiled {
		byName[c.Route.Name] = c
	}

	login := byName["auth.login"]
	assert.Equal(t, ratelimit.PolicyLogin, login.Spec.Policy)
	assert.Equal(t, pipeline.AuthNone, login.Spec.Auth)
	assert.Nil(t, login.Spec.Require)

	menu := byName["menus.get"]
	assert.Equal(t, pipeline.AuthOptional, menu.Spec.Auth)

	payouts := byName["finance.payouts"]
	require.NotNil(t, payouts.Spec.Require)
	assert.True(t, payouts.Spec.Require.Allows(auth.RoleFinance))
	assert.True(t, payouts.Spec.Require.Allows(auth.RoleSuperAdmin))
	assert.False(t, payouts.Spec.Require.Allows(auth.RoleManager))

	status := byName["orders.status"]
	require.NotNil(t, status.Spec.Require)
	assert.True(t, status.Spec.Require.Allows(auth.RoleSupport))
	assert.False(t, status.Spec.Require.Allows(auth.RoleCustomer))
}

func TestDefault_OTPCodeRule(t *testing.T) {
	compiled, err := Default().Compile(defaultRegistry(t))
	require.NoError(t, err)

	var rules validation.RuleSet
	for _, c := range compiled {
		if c.Route.Name == "auth.otp.verify" {
			rules = c.Spec.Rules
		}
	}
	require.Len(t, rules, 2)

	err = validation.Validate(validation.NewPayload(map[string]interface{}{
		"phone": "+919876543210",
		"code":  "12ab",
	}), rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code")

	err = validation.Validate(validation.NewPayload(map[string]interface{}{
		"phone": "+919876543210",
		"code":  "123456",
	}), rules)
	assert.NoError(t, err)
}

func TestParse(t *testing.T) {
	table, err := Parse([]byte(`
routes:
  - name: hr.attendance
    method: post
    path: /hr/attendance
    policy: api
    auth: required
    roles: staff
    rules:
      - field: date
        checks:
          - kind: iso_date
      - field: note
        optional: true
        checks:
          - kind: length
            max: 20
`))
	require.NoError(t, err)
	require.Len(t, table.Routes, 1)
	assert.Equal(t, StringList{"staff"}, table.Routes[0].Roles)

	compiled, err := table.Compile(defaultRegistry(t))
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "POST", compiled[0].Route.Method)
	assert.True(t, compiled[0].Spec.Require.Allows(auth.RoleHR))
	require.Len(t, compiled[0].Spec.Rules, 2)
	assert.True(t, compiled[0].Spec.Rules[1].Optional)
}

func TestParse_Empty(t *testing.T) {
	table, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, table.Routes)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte(`
routes:
  - name: x
    method: GET
    path: /x
    polcy: api
`))
	assert.Error(t, err)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "routes:\n  - method: GET\n    path: /x\n"},
		{"bad method", "routes:\n  - name: x\n    method: TRACE\n    path: /x\n"},
		{"relative path", "routes:\n  - name: x\n    method: GET\n    path: x\n"},
		{"unknown policy", "routes:\n  - name: x\n    method: GET\n    path: /x\n    policy: burst\n"},
		{"bad auth", "routes:\n  - name: x\n    method: GET\n    path: /x\n    auth: sometimes\n"},
		{"roles without auth", "routes:\n  - name: x\n    method: GET\n    path: /x\n    roles: [hr]\n"},
		{"unknown role", "routes:\n  - name: x\n    method: GET\n    path: /x\n    auth: required\n    roles: [chef]\n"},
		{"unknown check", "routes:\n  - name: x\n    method: GET\n    path: /x\n    rules:\n      - field: a\n        checks:\n          - kind: color\n"},
		{"min above max", "routes:\n  - name: x\n    method: GET\n    path: /x\n    rules:\n      - field: a\n        checks:\n          - kind: integer\n            min: 5\n            max: 1\n"},
		{"unbounded length", "routes:\n  - name: x\n    method: GET\n    path: /x\n    rules:\n      - field: a\n        checks:\n          - kind: length\n"},
		{"empty one_of", "routes:\n  - name: x\n    method: GET\n    path: /x\n    rules:\n      - field: a\n        checks:\n          - kind: one_of\n"},
		{"bad pattern", "routes:\n  - name: x\n    method: GET\n    path: /x\n    rules:\n      - field: a\n        checks:\n          - kind: pattern\n            pattern: \"[\"\n"},
		{"duplicate name", "routes:\n  - name: x\n    method: GET\n    path: /x\n  - name: x\n    method: GET\n    path: /y\n"},
		{"duplicate endpoint", "routes:\n  - name: x\n    method: GET\n    path: /x\n  - name: y\n    method: get\n    path: /x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = table.Compile(defaultRegistry(t))
			assert.Error(t, err)
		})
	}
}

func TestCompile_ReportsAllErrors(t *testing.T) {
	table, err := Parse([]byte(`
routes:
  - name: a
    method: GET
    path: /a
    policy: nope
  - name: b
    method: GET
    path: /b
    auth: never
`))
	require.NoError(t, err)

	_, err = table.Compile(defaultRegistry(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route a")
	assert.Contains(t, err.Error(), "route b")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - name: x\n    method: GET\n    path: /x\n"), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	require.Len(t, table.Routes, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStringList_RejectsMapping(t *testing.T) {
	_, err := Parse([]byte("routes:\n  - name: x\n    method: GET\n    path: /x\n    roles:\n      a: b\n"))
	assert.Error(t, err)
}
