package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

var (
	// ErrUserNotFound indicates a missing user profile.
	ErrUserNotFound = errors.New("user profile not found")
	// ErrUserConflict indicates a uniqueness violation (duplicated email).
	ErrUserConflict = errors.New("user profile conflict")
)

// UserRecord is a tenant-scoped user profile. UserID equals the directory
// Principal id. TenantAdmin is a display-only flag that may drift from the
// claims bag; the authorization gate treats claims as the source of truth.
type UserRecord struct {
	UserID         string     `db:"user_id"`
	TenantID       uuid.UUID  `db:"tenant_id"`
	Email          string     `db:"email"`
	FullName       string     `db:"full_name"`
	RoleID         uuid.UUID  `db:"role_id"`
	RoleName       string     `db:"role_name"`
	BusinessUnitID *uuid.UUID `db:"business_unit_id"`
	Designation    *string    `db:"designation"`
	Active         bool       `db:"active"`
	TenantAdmin    bool       `db:"tenant_admin"`
	PlatformAdmin  bool       `db:"platform_admin"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// UserStore exposes tenant-scoped access to user profiles.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a store; assumes EnsureSchema already ran.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

const userColumns = "user_id, tenant_id, email, full_name, role_id, role_name, business_unit_id, designation, active, tenant_admin, platform_admin, created_at, updated_at"

// Create inserts a user profile under the resolved scope.
func (s *UserStore) Create(ctx context.Context, scope tenant.Scope, rec UserRecord) (UserRecord, error) {
	if err := requireScopedWrite(scope, rec.TenantID); err != nil {
		return UserRecord{}, err
	}
	if strings.TrimSpace(rec.UserID) == "" {
		return UserRecord{}, errors.New("user id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, tenant_id, email, full_name, role_id, role_name,
            business_unit_id, designation, active, tenant_admin, platform_admin)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING %s
    `, UsersTable, userColumns),
		rec.UserID, rec.TenantID, strings.ToLower(strings.TrimSpace(rec.Email)),
		strings.TrimSpace(rec.FullName), rec.RoleID, rec.RoleName,
		rec.BusinessUnitID, rec.Designation, rec.Active, rec.TenantAdmin, rec.PlatformAdmin,
	)

	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return UserRecord{}, ErrUserConflict
		}
		return UserRecord{}, err
	}
	return created, nil
}

// ListByTenant returns every profile under the resolved scope, newest first.
func (s *UserStore) ListByTenant(ctx context.Context, scope tenant.Scope) ([]UserRecord, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY created_at DESC
    `, userColumns, UsersTable), scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]UserRecord, 0)
	for rows.Next() {
		rec, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan user: %w", scanErr)
		}
		users = append(users, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Get returns a single profile under the resolved scope.
func (s *UserStore) Get(ctx context.Context, scope tenant.Scope, id string) (UserRecord, error) {
	if err := requireScope(scope); err != nil {
		return UserRecord{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE user_id = $1 AND tenant_id = $2
    `, userColumns, UsersTable), id, scope.TenantID)

	rec, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, err
	}
	return rec, nil
}

// CountByTenant reports how many profiles exist under a tenant. Used by the
// plan ceiling check and the orphan-delete precondition, which are platform
// operations, so it takes the raw tenant id rather than a scope.
func (s *UserStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*) FROM %s WHERE tenant_id = $1
    `, UsersTable), tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// AdminFlags are the stored display flags read by the authorization gate's
// two-source check.
type AdminFlags struct {
	PlatformAdmin bool
	TenantAdmin   bool
	TenantID      *uuid.UUID
}

// GetAdminFlags reads only the display flags for a profile, by principal id.
// Deliberately unscoped: the gate runs before any tenant scope exists.
func (s *UserStore) GetAdminFlags(ctx context.Context, userID string) (AdminFlags, error) {
	var flags AdminFlags
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT platform_admin, tenant_admin, tenant_id FROM %s WHERE user_id = $1
    `, UsersTable), userID).Scan(&flags.PlatformAdmin, &flags.TenantAdmin, &flags.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AdminFlags{}, ErrUserNotFound
		}
		return AdminFlags{}, err
	}
	return flags, nil
}

// SetTenantAdminFlag updates the display flag after a claims repair.
func (s *UserStore) SetTenantAdminFlag(ctx context.Context, scope tenant.Scope, userID string, tenantAdmin bool) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET tenant_admin = $1, updated_at = NOW()
        WHERE user_id = $2 AND tenant_id = $3
    `, UsersTable), tenantAdmin, userID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("set tenant admin flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListAllTenantScoped streams every tenant-scoped profile. Reserved for the
// platform-admin claims sweep; ordinary reads go through ListByTenant.
func (s *UserStore) ListAllTenantScoped(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id IS NOT NULL ORDER BY tenant_id, created_at
    `, userColumns, UsersTable))
	if err != nil {
		return nil, fmt.Errorf("list all users: %w", err)
	}
	defer rows.Close()

	users := make([]UserRecord, 0)
	for rows.Next() {
		rec, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan user: %w", scanErr)
		}
		users = append(users, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Delete removes a profile. Used by saga compensation.
func (s *UserStore) Delete(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, UsersTable), userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteByTenant removes every profile under a tenant; compensation path only.
func (s *UserStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, UsersTable), tenantID); err != nil {
		return fmt.Errorf("delete users by tenant: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var rec UserRecord
	if err := row.Scan(
		&rec.UserID, &rec.TenantID, &rec.Email, &rec.FullName, &rec.RoleID, &rec.RoleName,
		&rec.BusinessUnitID, &rec.Designation, &rec.Active, &rec.TenantAdmin, &rec.PlatformAdmin,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
