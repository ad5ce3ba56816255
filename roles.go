package session

// Role is the effective privilege level derived from a resolution outcome.
// It is never set directly by callers.
type Role = string

const (
	// RoleMember is a signed-in user with no tenant yet
	RoleMember Role = "member"
	// RoleOrgAdmin administers the tenant the identity belongs to
	RoleOrgAdmin Role = "org_admin"
	// RoleSuperAdmin is a privileged platform operator
	RoleSuperAdmin Role = "super_admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleMember, RoleOrgAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// RoleIsAtLeast checks if a role meets the minimum required level
func RoleIsAtLeast(r, minRole Role) bool {
	hierarchy := map[Role]int{
		RoleMember:     0,
		RoleOrgAdmin:   1,
		RoleSuperAdmin: 2,
	}

	currentLevel, exists := hierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := hierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns the predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleMember,
		RoleOrgAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}
