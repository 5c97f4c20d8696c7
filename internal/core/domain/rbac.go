package domain

import "strings"

// Role is the closed set of operator roles.
type Role string

const (
	RoleSuperAdmin    Role = "SuperAdmin"
	RoleAdministrator Role = "Administrator"
	RoleReceptionist  Role = "Receptionist"
	RoleSecurityGuard Role = "SecurityGuard"
)

// Roles lists every known role, most privileged first.
var Roles = []Role{RoleSuperAdmin, RoleAdministrator, RoleReceptionist, RoleSecurityGuard}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole matches value against the known roles case-insensitively.
func ParseRole(value string) (Role, bool) {
	trimmed := strings.TrimSpace(value)
	for _, known := range Roles {
		if strings.EqualFold(trimmed, string(known)) {
			return known, true
		}
	}
	return "", false
}

// Resources and actions referenced by the static permission table.
const (
	ResourceVisitor      = "visitor"
	ResourceSystemConfig = "system_config"
	ResourceUser         = "user"

	ActionRegister = "register"
	ActionCheckIn  = "checkin"
	ActionCheckOut = "checkout"
	ActionView     = "view"
	ActionCreate   = "create"
)

// Permission is a resource/action pair.
type Permission struct {
	Resource string
	Action   string
}
