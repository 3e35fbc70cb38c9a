// Package roles defines the two role hierarchies used for access control:
// organization-level roles and app-level roles. Both are small closed
// enumerations with an explicit total order. Absence of a role is always
// represented by the caller (an ok=false lookup result), never by a default
// role value.
package roles

// OrgRole represents a user's privilege level within an organization.
type OrgRole string

const (
	OrgUser          OrgRole = "USER"
	OrgAdministrator OrgRole = "ADMINISTRATOR"
	OrgOwner         OrgRole = "OWNER"
)

// AppRole represents a user's privilege level within a single app.
type AppRole string

const (
	AppUser  AppRole = "USER"
	AppOwner AppRole = "OWNER"
)

var orgRoleRank = map[OrgRole]int{
	OrgUser:          0,
	OrgAdministrator: 1,
	OrgOwner:         2,
}

var appRoleRank = map[AppRole]int{
	AppUser:  0,
	AppOwner: 1,
}

// ValidOrgRole reports whether r is a known organization role.
func ValidOrgRole(r OrgRole) bool {
	_, ok := orgRoleRank[r]
	return ok
}

// ValidAppRole reports whether r is a known app role.
func ValidAppRole(r AppRole) bool {
	_, ok := appRoleRank[r]
	return ok
}

// HasOrgWriteAccess reports whether r may create, modify or delete apps in
// the organization. True for ADMINISTRATOR and OWNER.
func HasOrgWriteAccess(r OrgRole) bool {
	return orgRoleRank[r] >= orgRoleRank[OrgAdministrator]
}

// HasOrgReadAccess reports whether r grants any access to the organization.
// True for every valid organization role.
func HasOrgReadAccess(r OrgRole) bool {
	return ValidOrgRole(r)
}

// IsOrgOwnerOrAdmin is an alias of HasOrgWriteAccess kept for call sites
// that test the role rather than the capability.
func IsOrgOwnerOrAdmin(r OrgRole) bool {
	return HasOrgWriteAccess(r)
}

// CompareOrgRoles returns -1, 0 or 1 as a is lower than, equal to or higher
// than b in the organization hierarchy.
func CompareOrgRoles(a, b OrgRole) int {
	ra, rb := orgRoleRank[a], orgRoleRank[b]
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// CompareAppRoles returns -1, 0 or 1 as a is lower than, equal to or higher
// than b in the app hierarchy.
func CompareAppRoles(a, b AppRole) int {
	ra, rb := appRoleRank[a], appRoleRank[b]
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}
