package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/platform/go/docstore"
)

type roleSourceMock struct {
	listSystemRoles         func(ctx context.Context) ([]docstore.RoleRecord, error)
	listSystemRolesByTenant func(ctx context.Context, tenantID uuid.UUID) ([]docstore.RoleRecord, error)
	updatePermissions       func(ctx context.Context, roleID uuid.UUID, permissions []string) error
}

func (m *roleSourceMock) ListSystemRoles(ctx context.Context) ([]docstore.RoleRecord, error) {
	return m.listSystemRoles(ctx)
}

func (m *roleSourceMock) ListSystemRolesByTenant(ctx context.Context, tenantID uuid.UUID) ([]docstore.RoleRecord, error) {
	return m.listSystemRolesByTenant(ctx, tenantID)
}

func (m *roleSourceMock) UpdatePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error {
	return m.updatePermissions(ctx, roleID, permissions)
}

func systemRole(name string, perms []string) docstore.RoleRecord {
	return docstore.RoleRecord{
		RoleID:      uuid.New(),
		TenantID:    uuid.New(),
		Name:        name,
		Permissions: perms,
		IsDefault:   true,
		IsSystem:    true,
	}
}

func TestMigrateAllRewritesDriftedSystemRoles(t *testing.T) {
	t.Parallel()

	drifted := systemRole(RoleEmployee, []string{"ViewReports", "ViewTasks"}) // missing CreateReports, ViewCalendar
	clean := systemRole(RoleManager, PermissionStrings(roleTemplates[RoleManager]))
	custom := docstore.RoleRecord{RoleID: uuid.New(), Name: "Field Auditor", Permissions: []string{"ViewReports"}, IsSystem: false}
	renamed := docstore.RoleRecord{RoleID: uuid.New(), Name: "Supervisor", Permissions: []string{"ViewTasks"}, IsSystem: true}

	rewrites := map[uuid.UUID][]string{}
	src := &roleSourceMock{
		listSystemRoles: func(ctx context.Context) ([]docstore.RoleRecord, error) {
			return []docstore.RoleRecord{drifted, clean, custom, renamed}, nil
		},
		updatePermissions: func(ctx context.Context, roleID uuid.UUID, permissions []string) error {
			rewrites[roleID] = permissions
			return nil
		},
	}

	engine := NewEngine(src, NewMigrationState(), zap.NewNop())
	updated, err := engine.MigrateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, updated)
	require.Contains(t, rewrites, drifted.RoleID)
	assert.ElementsMatch(t, PermissionStrings(roleTemplates[RoleEmployee]), rewrites[drifted.RoleID])
	assert.NotContains(t, rewrites, clean.RoleID)
	assert.NotContains(t, rewrites, custom.RoleID)
	assert.NotContains(t, rewrites, renamed.RoleID)
}

func TestMigrateOverwritesCustomAdditions(t *testing.T) {
	t.Parallel()

	// A manually widened Employee role loses its extra grant.
	widened := systemRole(RoleEmployee, append(PermissionStrings(roleTemplates[RoleEmployee]), "ManageSettings"))

	var got []string
	src := &roleSourceMock{
		listSystemRoles: func(ctx context.Context) ([]docstore.RoleRecord, error) {
			return []docstore.RoleRecord{widened}, nil
		},
		updatePermissions: func(ctx context.Context, roleID uuid.UUID, permissions []string) error {
			got = permissions
			return nil
		},
	}

	engine := NewEngine(src, NewMigrationState(), zap.NewNop())
	updated, err := engine.MigrateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.ElementsMatch(t, PermissionStrings(roleTemplates[RoleEmployee]), got)
}

func TestMigrateAllSecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	stored := []docstore.RoleRecord{
		systemRole(RoleEmployee, []string{"view_reports"}),
		systemRole(RoleAdmin, nil),
	}

	src := &roleSourceMock{
		listSystemRoles: func(ctx context.Context) ([]docstore.RoleRecord, error) {
			out := make([]docstore.RoleRecord, len(stored))
			copy(out, stored)
			return out, nil
		},
		updatePermissions: func(ctx context.Context, roleID uuid.UUID, permissions []string) error {
			for i := range stored {
				if stored[i].RoleID == roleID {
					stored[i].Permissions = permissions
				}
			}
			return nil
		},
	}

	engine := NewEngine(src, NewMigrationState(), zap.NewNop())

	first, err := engine.MigrateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := engine.MigrateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestStartupGuard(t *testing.T) {
	t.Parallel()

	listCalls := 0
	src := &roleSourceMock{
		listSystemRoles: func(ctx context.Context) ([]docstore.RoleRecord, error) {
			listCalls++
			return nil, nil
		},
	}

	state := NewMigrationState()
	engine := NewEngine(src, state, zap.NewNop())

	_, err := engine.RunStartup(context.Background())
	require.NoError(t, err)
	_, err = engine.RunStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, listCalls)
	assert.True(t, state.StartupDone())

	// The explicit entry point ignores the guard.
	_, err = engine.FixRolePermissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, listCalls)

	state.Reset()
	_, err = engine.RunStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, listCalls)
}

func TestTranslateLegacyChain(t *testing.T) {
	t.Parallel()

	got := TranslateLegacy(TemplateV1, TemplateV2, []string{
		"manage_members",
		"view_reports",
		"ViewTasks",        // already canonical
		"export_to_floppy", // unknown, dropped
		"view_reports",     // duplicate, collapsed
	})

	assert.Equal(t, []Permission{PermManageUsers, PermViewReports, PermViewTasks}, got)
}

func TestNormalizeStoredDropsUnknownStrings(t *testing.T) {
	t.Parallel()

	got := NormalizeStored([]string{"nonsense", "ManageRoles"})
	assert.Equal(t, []Permission{PermManageRoles}, got)
}

func TestTemplateForCopies(t *testing.T) {
	t.Parallel()

	tpl, ok := TemplateFor(RoleAdmin)
	require.True(t, ok)
	require.Len(t, tpl, len(AllPermissions()))

	tpl[0] = Permission("Mutated")
	fresh, _ := TemplateFor(RoleAdmin)
	assert.Equal(t, AllPermissions(), fresh)

	_, ok = TemplateFor("Supervisor")
	assert.False(t, ok)
}
