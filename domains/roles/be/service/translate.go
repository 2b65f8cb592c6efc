package service

// translationKey identifies one migration generation. Entries are append-only:
// a new template version adds a (previous, new) entry and never edits older
// ones, so stored data from any generation can be chained forward.
type translationKey struct {
	From TemplateVersion
	To   TemplateVersion
}

// permissionTranslations maps legacy permission strings to their canonical
// successor, one entry per adjacent version pair.
var permissionTranslations = map[translationKey]map[string]Permission{
	{TemplateV1, TemplateV2}: {
		"view_reports":    PermViewReports,
		"create_reports":  PermCreateReports,
		"approve_reports": PermApproveReports,
		"view_tasks":      PermViewTasks,
		"manage_tasks":    PermManageTasks,
		"assign_tasks":    PermAssignTasks,
		"view_calendar":   PermViewCalendar,
		"manage_calendar": PermManageCalendar,
		"view_members":    PermViewUsers,
		"manage_members":  PermManageUsers,
		"view_roles":      PermViewRoles,
		"manage_roles":    PermManageRoles,
		"view_settings":   PermViewSettings,
		"manage_settings": PermManageSettings,
	},
}

// TranslateLegacy walks the stored permission strings through every
// translation generation from `from` up to `to`. Strings already in the
// closed enum pass through; unrecognized strings are dropped silently.
func TranslateLegacy(from, to TemplateVersion, stored []string) []Permission {
	current := make([]string, len(stored))
	copy(current, stored)

	for v := from; v < to; v++ {
		table := permissionTranslations[translationKey{v, v + 1}]
		next := current[:0:len(current)]
		for _, s := range current {
			if translated, ok := table[s]; ok {
				next = append(next, string(translated))
				continue
			}
			next = append(next, s)
		}
		current = next
	}

	out := make([]Permission, 0, len(current))
	seen := make(map[Permission]struct{}, len(current))
	for _, s := range current {
		if !IsValidPermission(s) {
			continue
		}
		p := Permission(s)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// NormalizeStored canonicalizes a stored permission list assuming it may date
// from any known generation.
func NormalizeStored(stored []string) []Permission {
	return TranslateLegacy(TemplateV1, CurrentTemplateVersion, stored)
}
