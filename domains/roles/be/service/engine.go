// Package service implements the permission migration engine: it reconciles
// stored role permissions against the versioned canonical templates, per
// tenant, idempotently.
package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
)

// RoleSource abstracts the role persistence the engine needs.
type RoleSource interface {
	ListSystemRoles(ctx context.Context) ([]docstore.RoleRecord, error)
	ListSystemRolesByTenant(ctx context.Context, tenantID uuid.UUID) ([]docstore.RoleRecord, error)
	UpdatePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error
}

// Engine drives permission migration runs.
type Engine struct {
	roles  RoleSource
	state  *MigrationState
	logger *zap.Logger
}

// NewEngine constructs an Engine with required dependencies.
func NewEngine(roles RoleSource, state *MigrationState, logger *zap.Logger) *Engine {
	if roles == nil {
		panic("roles source is required")
	}
	if state == nil {
		panic("migration state is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Engine{roles: roles, state: state, logger: logger}
}

// MigrateAll reconciles every system role across all tenants. Returns the
// count of roles rewritten; a second run over clean data returns zero.
func (e *Engine) MigrateAll(ctx context.Context) (int, error) {
	roles, err := e.roles.ListSystemRoles(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeInternal, "list system roles")
	}
	return e.migrate(ctx, roles)
}

// MigrateTenant reconciles the system roles of a single tenant.
func (e *Engine) MigrateTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	roles, err := e.roles.ListSystemRolesByTenant(ctx, tenantID)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeInternal, "list tenant system roles")
	}
	return e.migrate(ctx, roles)
}

// FixRolePermissions is the explicit on-demand entry point. It always runs,
// regardless of the startup guard.
func (e *Engine) FixRolePermissions(ctx context.Context) (int, error) {
	return e.MigrateAll(ctx)
}

// RunStartup performs the opportunistic boot-time migration at most once per
// process lifetime. Returns (0, nil) without touching the store when the
// guard is already set.
func (e *Engine) RunStartup(ctx context.Context) (int, error) {
	if !e.state.TryStartup() {
		return 0, nil
	}
	updated, err := e.MigrateAll(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("startup permission migration finished", zap.Int("rolesUpdated", updated))
	return updated, nil
}

func (e *Engine) migrate(ctx context.Context, roles []docstore.RoleRecord) (int, error) {
	updated := 0
	for _, role := range roles {
		if !role.IsSystem || !IsSystemRoleName(role.Name) {
			continue
		}

		template, ok := TemplateFor(role.Name)
		if !ok {
			continue
		}
		target := PermissionStrings(template)

		if sameStringSet(role.Permissions, target) {
			continue
		}

		if err := e.roles.UpdatePermissions(ctx, role.RoleID, target); err != nil {
			return updated, apperrors.Wrap(err, apperrors.CodeInternal, "rewrite role permissions")
		}
		updated++

		e.logger.Info("system role permissions rewritten",
			zap.String("roleId", role.RoleID.String()),
			zap.String("tenantId", role.TenantID.String()),
			zap.String("role", role.Name),
			zap.Int("storedCount", len(role.Permissions)),
			zap.Int("templateCount", len(target)))
	}
	return updated, nil
}

// sameStringSet compares two permission lists ignoring order and duplicates.
// A match means the stored document needs no write.
func sameStringSet(stored, target []string) bool {
	set := make(map[string]struct{}, len(target))
	for _, s := range target {
		set[s] = struct{}{}
	}
	seen := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		if _, ok := set[s]; !ok {
			return false
		}
		seen[s] = struct{}{}
	}
	return len(seen) == len(set)
}
