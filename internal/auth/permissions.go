package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermUserCreate      Permission = "user:create"
	PermUserRead        Permission = "user:read"
	PermUserUpdate      Permission = "user:update"
	PermUserDelete      Permission = "user:delete"
	PermUserManageRole  Permission = "user:manage_role"
	PermUserManageOwner Permission = "user:manage_owner"

	PermGroupCreate Permission = "group:create"
	PermGroupRead   Permission = "group:read"
	PermGroupUpdate Permission = "group:update"
	PermGroupDelete Permission = "group:delete"

	PermMembershipCreate Permission = "membership:create"
	PermMembershipRead   Permission = "membership:read"
	PermMembershipDelete Permission = "membership:delete"

	PermAccessPointCreate Permission = "access_point:create"
	PermAccessPointRead   Permission = "access_point:read"
	PermAccessPointUpdate Permission = "access_point:update"
	PermAccessPointDelete Permission = "access_point:delete"

	PermLogRead        Permission = "log:read"
	PermSystemOverview Permission = "system:overview"
)

// adminPermissions is everything an admin holds unconditionally.
var adminPermissions = []Permission{
	PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserManageRole,
	PermGroupCreate, PermGroupRead, PermGroupUpdate, PermGroupDelete,
	PermMembershipCreate, PermMembershipRead, PermMembershipDelete,
	PermAccessPointCreate, PermAccessPointRead, PermAccessPointUpdate, PermAccessPointDelete,
	PermLogRead, PermSystemOverview,
}

// rolePermissions maps each role to the permissions it holds for every
// object. Object-scoped grants (a user reading their own profile) are
// decided by Authorizer.Check.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermAccessPointRead,
	},
	RoleAdmin: adminPermissions,
	RoleOwner: append(append([]Permission{}, adminPermissions...), PermUserManageOwner),
}

// HasPermission returns true if the given role holds perm unconditionally.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
