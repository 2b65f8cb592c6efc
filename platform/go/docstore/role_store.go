package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

var (
	// ErrRoleNotFound indicates a missing role row.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleConflict indicates a duplicate role name inside a tenant.
	ErrRoleConflict = errors.New("role conflict")
)

// RoleRecord is a tenant-scoped role. System roles carry template-owned
// permission sets; custom roles are tenant-owned.
type RoleRecord struct {
	RoleID      uuid.UUID `db:"role_id"`
	TenantID    uuid.UUID `db:"tenant_id"`
	Name        string    `db:"name"`
	Permissions []string  `db:"permissions"`
	Description string    `db:"description"`
	IsDefault   bool      `db:"is_default"`
	IsSystem    bool      `db:"is_system"`
	CreatedAt   time.Time `db:"created_at"`
}

// RoleStore exposes tenant-scoped access to roles.
type RoleStore struct {
	pool    *pgxpool.Pool
	batcher *Batcher
}

// NewRoleStore creates a store; assumes EnsureSchema already ran.
func NewRoleStore(pool *pgxpool.Pool) (*RoleStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RoleStore{pool: pool, batcher: NewBatcher(pool)}, nil
}

const roleColumns = "role_id, tenant_id, name, permissions, description, is_default, is_system, created_at"

const insertRoleSQL = `
        INSERT INTO ` + RolesTable + ` (role_id, tenant_id, name, permissions, description, is_default, is_system)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

// CreateMany inserts roles under the resolved scope through the chunked
// batch writer.
func (s *RoleStore) CreateMany(ctx context.Context, scope tenant.Scope, recs []RoleRecord) error {
	ops := make([]BatchOp, 0, len(recs))
	for _, rec := range recs {
		if err := requireScopedWrite(scope, rec.TenantID); err != nil {
			return err
		}
		ops = append(ops, BatchOp{
			SQL:  insertRoleSQL,
			Args: []any{rec.RoleID, rec.TenantID, rec.Name, rec.Permissions, rec.Description, rec.IsDefault, rec.IsSystem},
		})
	}
	if _, err := s.batcher.Run(ctx, ops); err != nil {
		if isUniqueViolation(err) {
			return ErrRoleConflict
		}
		return err
	}
	return nil
}

// Get returns a role under the resolved scope.
func (s *RoleStore) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (RoleRecord, error) {
	if err := requireScope(scope); err != nil {
		return RoleRecord{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE role_id = $1 AND tenant_id = $2
    `, roleColumns, RolesTable), id, scope.TenantID)

	rec, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleRecord{}, ErrRoleNotFound
		}
		return RoleRecord{}, err
	}
	return rec, nil
}

// ListByTenant returns every role under the resolved scope.
func (s *RoleStore) ListByTenant(ctx context.Context, scope tenant.Scope) ([]RoleRecord, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	return s.queryRoles(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY name
    `, roleColumns, RolesTable), scope.TenantID)
}

// ListSystemRoles returns every system role across all tenants. Reserved for
// the permission migration engine, which runs as a platform operation.
func (s *RoleStore) ListSystemRoles(ctx context.Context) ([]RoleRecord, error) {
	return s.queryRoles(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE is_system ORDER BY tenant_id, name
    `, roleColumns, RolesTable))
}

// ListSystemRolesByTenant returns a single tenant's system roles.
func (s *RoleStore) ListSystemRolesByTenant(ctx context.Context, tenantID uuid.UUID) ([]RoleRecord, error) {
	return s.queryRoles(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE is_system AND tenant_id = $1 ORDER BY name
    `, roleColumns, RolesTable), tenantID)
}

// UpdatePermissions overwrites a role's permission list.
func (s *RoleStore) UpdatePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET permissions = $1 WHERE role_id = $2
    `, RolesTable), permissions, roleID)
	if err != nil {
		return fmt.Errorf("update role permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// DeleteByTenant removes every role under a tenant; compensation and
// orphan-cleanup path only.
func (s *RoleStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, RolesTable), tenantID); err != nil {
		return fmt.Errorf("delete roles by tenant: %w", err)
	}
	return nil
}

func (s *RoleStore) queryRoles(ctx context.Context, sql string, args ...any) ([]RoleRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]RoleRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRole(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan role: %w", scanErr)
		}
		roles = append(roles, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

func scanRole(row pgx.Row) (RoleRecord, error) {
	var rec RoleRecord
	if err := row.Scan(
		&rec.RoleID, &rec.TenantID, &rec.Name, &rec.Permissions, &rec.Description,
		&rec.IsDefault, &rec.IsSystem, &rec.CreatedAt,
	); err != nil {
		return RoleRecord{}, err
	}
	return rec, nil
}
