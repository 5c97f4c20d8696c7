package usecase

import (
	"testing"

	"github.com/azniosman/vms/internal/core/domain"
)

func TestRoleAllowsTable(t *testing.T) {
	cases := []struct {
		role     domain.Role
		resource string
		action   string
		want     bool
	}{
		{domain.RoleSuperAdmin, "system_config", "update", true},
		{domain.RoleSuperAdmin, "visitor", "delete", true},
		{domain.RoleAdministrator, "visitor", "delete", true},
		{domain.RoleAdministrator, "report", "generate", true},
		{domain.RoleAdministrator, "system_config", "view", false},
		{domain.RoleAdministrator, " System_Config ", "view", false},
		{domain.RoleReceptionist, "visitor", "register", true},
		{domain.RoleReceptionist, "visitor", "checkin", true},
		{domain.RoleReceptionist, "visitor", "checkout", true},
		{domain.RoleReceptionist, "visitor", "delete", false},
		{domain.RoleReceptionist, "report", "generate", false},
		{domain.RoleSecurityGuard, "visitor", "view", true},
		{domain.RoleSecurityGuard, "visitor", "checkin", false},
		{domain.Role("Janitor"), "visitor", "view", false},
		{domain.RoleSuperAdmin, "", "view", false},
	}

	for _, tc := range cases {
		if got := RoleAllows(tc.role, tc.resource, tc.action); got != tc.want {
			t.Fatalf("RoleAllows(%s, %q, %q) = %v, want %v", tc.role, tc.resource, tc.action, got, tc.want)
		}
	}
}
