package service

// Default role names provisioned for every new tenant. Only roles with these
// names AND the system flag are owned by the migration engine.
const (
	RoleEmployee = "Employee"
	RoleManager  = "Manager"
	RoleAdmin    = "Admin"
)

// TemplateVersion identifies a generation of the canonical permission
// templates. Bumped whenever a template changes shape, together with a
// translation entry from the prior version.
type TemplateVersion int

const (
	// TemplateV1 used lower_underscore permission strings.
	TemplateV1 TemplateVersion = 1
	// TemplateV2 is the current CamelCase enum.
	TemplateV2 TemplateVersion = 2

	CurrentTemplateVersion = TemplateV2
)

// roleTemplates holds the canonical permission list per system role name for
// the current template version.
var roleTemplates = map[string][]Permission{
	RoleEmployee: {
		PermViewReports, PermCreateReports,
		PermViewTasks,
		PermViewCalendar,
	},
	RoleManager: {
		PermViewReports, PermCreateReports, PermApproveReports,
		PermViewTasks, PermManageTasks, PermAssignTasks,
		PermViewCalendar, PermManageCalendar,
		PermViewUsers,
	},
	RoleAdmin: AllPermissions(),
}

// TemplateFor returns the canonical permission list for a system role name.
// The returned slice is a copy; callers may mutate it.
func TemplateFor(roleName string) ([]Permission, bool) {
	tpl, ok := roleTemplates[roleName]
	if !ok {
		return nil, false
	}
	out := make([]Permission, len(tpl))
	copy(out, tpl)
	return out, true
}

// IsSystemRoleName reports whether the name belongs to the default-role
// allow-list the engine owns.
func IsSystemRoleName(name string) bool {
	_, ok := roleTemplates[name]
	return ok
}

// DefaultRoleNames returns the system role names in provisioning order.
func DefaultRoleNames() []string {
	return []string{RoleEmployee, RoleManager, RoleAdmin}
}
