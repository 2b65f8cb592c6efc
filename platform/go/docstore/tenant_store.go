package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTenantNotFound indicates a missing tenant row.
	ErrTenantNotFound = errors.New("tenant not found")
)

// TenantRecord represents a row in the tenants table. The admin identity is
// denormalized so platform views never need a directory round trip.
type TenantRecord struct {
	TenantID    uuid.UUID `db:"tenant_id"`
	CompanyName string    `db:"company_name"`
	Plan        string    `db:"plan"`
	Status      string    `db:"status"`
	UserLimit   int       `db:"user_limit"`
	AdminUserID *string   `db:"admin_user_id"`
	AdminEmail  *string   `db:"admin_email"`
	CreatedAt   time.Time `db:"created_at"`
}

// TenantStore provides access to the platform-area tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes EnsureSchema already ran.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

const tenantColumns = "tenant_id, company_name, plan, status, user_limit, admin_user_id, admin_email, created_at"

// Create inserts a new tenant row.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING %s
    `, TenantsTable, tenantColumns, tenantColumns),
		rec.TenantID, rec.CompanyName, rec.Plan, rec.Status, rec.UserLimit,
		rec.AdminUserID, rec.AdminEmail, rec.CreatedAt,
	)

	return scanTenant(row)
}

// Get returns a tenant by id.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1
    `, tenantColumns, TenantsTable), id)

	rec, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrTenantNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// UpdateStatus overwrites the status field.
func (s *TenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET status = $1 WHERE tenant_id = $2
        RETURNING %s
    `, TenantsTable, tenantColumns), status, id)

	rec, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrTenantNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// UpdatePlan overwrites plan and the user ceiling derived from it.
func (s *TenantStore) UpdatePlan(ctx context.Context, id uuid.UUID, plan string, userLimit int) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET plan = $1, user_limit = $2 WHERE tenant_id = $3
        RETURNING %s
    `, TenantsTable, tenantColumns), plan, userLimit, id)

	rec, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrTenantNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// SetAdminIdentity records the denormalized admin user id and email.
func (s *TenantStore) SetAdminIdentity(ctx context.Context, id uuid.UUID, adminUserID, adminEmail string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET admin_user_id = $1, admin_email = $2 WHERE tenant_id = $3
    `, TenantsTable), adminUserID, adminEmail, id)
	if err != nil {
		return fmt.Errorf("set admin identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Delete removes the tenant row. Restricted to the orphan-cleanup path and
// saga compensation; ordinary lifecycle changes are soft status updates.
func (s *TenantStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, TenantsTable), id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(
		&rec.TenantID, &rec.CompanyName, &rec.Plan, &rec.Status, &rec.UserLimit,
		&rec.AdminUserID, &rec.AdminEmail, &rec.CreatedAt,
	); err != nil {
		return TenantRecord{}, err
	}
	return rec, nil
}
