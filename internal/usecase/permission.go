package usecase

import (
	"strings"

	"github.com/azniosman/vms/internal/core/domain"
)

// RoleAllows evaluates the static role to resource/action table.
//
//	SuperAdmin     everything
//	Administrator  everything except system_config
//	Receptionist   visitor: register, checkin, checkout
//	SecurityGuard  visitor: view
func RoleAllows(role domain.Role, resource, action string) bool {
	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))
	if resource == "" || action == "" {
		return false
	}

	switch role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleAdministrator:
		return resource != domain.ResourceSystemConfig
	case domain.RoleReceptionist:
		if resource != domain.ResourceVisitor {
			return false
		}
		switch action {
		case domain.ActionRegister, domain.ActionCheckIn, domain.ActionCheckOut:
			return true
		}
		return false
	case domain.RoleSecurityGuard:
		return resource == domain.ResourceVisitor && action == domain.ActionView
	default:
		return false
	}
}
