package model

// Role is the coarse capability group a system user belongs to.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSecretary Role = "secretary"
	RoleTeacher   Role = "teacher"
	RoleViewer    Role = "viewer"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions,
	RoleSecretary: {
		PermissionCatalogRead, PermissionCatalogWrite,
		PermissionRosterRead, PermissionRosterWrite,
		PermissionGradesRead, PermissionGradesWrite,
	},
	RoleTeacher: {
		PermissionCatalogRead,
		PermissionRosterRead,
		PermissionGradesRead, PermissionGradesWrite,
	},
	RoleViewer: {
		PermissionCatalogRead,
		PermissionRosterRead,
		PermissionGradesRead,
	},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permissions returns the permissions granted to r. Unknown roles get none.
func (r Role) Permissions() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Can reports whether r grants p.
func (r Role) Can(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}
