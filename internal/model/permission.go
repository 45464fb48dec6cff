package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionCatalogRead allows viewing students, courses and sections.
	PermissionCatalogRead Permission = "catalog:read"

	// PermissionCatalogWrite allows creating, updating and deleting students, courses and sections.
	PermissionCatalogWrite Permission = "catalog:write"

	// PermissionRosterRead allows viewing section rosters.
	PermissionRosterRead Permission = "roster:read"

	// PermissionRosterWrite allows enrolling and unenrolling students.
	PermissionRosterWrite Permission = "roster:write"

	// PermissionGradesRead allows viewing grades, transcripts and reports.
	PermissionGradesRead Permission = "grades:read"

	// PermissionGradesWrite allows entering and importing grades.
	PermissionGradesWrite Permission = "grades:write"

	// PermissionUsersWrite allows managing system users.
	PermissionUsersWrite Permission = "users:write"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionCatalogRead,
	PermissionCatalogWrite,
	PermissionRosterRead,
	PermissionRosterWrite,
	PermissionGradesRead,
	PermissionGradesWrite,
	PermissionUsersWrite,
}
