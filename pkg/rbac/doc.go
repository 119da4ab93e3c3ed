// Package rbac checks an authenticated identity against the roles a route allows.
//
// A Requirement is a flat set of roles; there is no hierarchy, so super_admin is
// only admitted where it is listed. Routes usually name one of the groups:
//
//	rbac.Staff     super_admin, manager, support, area_manager, team_lead, finance, hr
//	rbac.Admins    super_admin, manager
//	rbac.AllRoles  every role
//
// Route tables may mix role and group names:
//
//	req, err := rbac.ParseRequirement([]string{"admins", "finance"})
//	err = rbac.NewAuthorizer().Authorize(identity, req)
package rbac
