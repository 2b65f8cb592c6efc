package service

// Permission enumerates every grant the platform understands. Role documents
// may only carry values from this set; the migration engine removes anything
// else.
type Permission string

const (
	PermViewReports    Permission = "ViewReports"
	PermCreateReports  Permission = "CreateReports"
	PermApproveReports Permission = "ApproveReports"
	PermViewTasks      Permission = "ViewTasks"
	PermManageTasks    Permission = "ManageTasks"
	PermAssignTasks    Permission = "AssignTasks"
	PermViewCalendar   Permission = "ViewCalendar"
	PermManageCalendar Permission = "ManageCalendar"
	PermViewUsers      Permission = "ViewUsers"
	PermManageUsers    Permission = "ManageUsers"
	PermViewRoles      Permission = "ViewRoles"
	PermManageRoles    Permission = "ManageRoles"
	PermViewSettings   Permission = "ViewSettings"
	PermManageSettings Permission = "ManageSettings"
)

// AllPermissions returns the closed enum in a stable order.
func AllPermissions() []Permission {
	return []Permission{
		PermViewReports, PermCreateReports, PermApproveReports,
		PermViewTasks, PermManageTasks, PermAssignTasks,
		PermViewCalendar, PermManageCalendar,
		PermViewUsers, PermManageUsers,
		PermViewRoles, PermManageRoles,
		PermViewSettings, PermManageSettings,
	}
}

var validPermissions = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(AllPermissions()))
	for _, p := range AllPermissions() {
		m[p] = struct{}{}
	}
	return m
}()

// IsValidPermission reports whether s is a member of the closed enum.
func IsValidPermission(s string) bool {
	_, ok := validPermissions[Permission(s)]
	return ok
}

// PermissionStrings converts a permission slice to its stored representation.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
