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

// ErrBusinessUnitNotFound indicates a missing business unit row.
var ErrBusinessUnitNotFound = errors.New("business unit not found")

// BusinessUnitRecord is a tenant-scoped organizational unit.
type BusinessUnitRecord struct {
	BusinessUnitID uuid.UUID `db:"business_unit_id"`
	TenantID       uuid.UUID `db:"tenant_id"`
	Name           string    `db:"name"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

// BusinessUnitStore exposes tenant-scoped access to business units.
type BusinessUnitStore struct {
	pool    *pgxpool.Pool
	batcher *Batcher
}

// NewBusinessUnitStore creates a store; assumes EnsureSchema already ran.
func NewBusinessUnitStore(pool *pgxpool.Pool) (*BusinessUnitStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &BusinessUnitStore{pool: pool, batcher: NewBatcher(pool)}, nil
}

const businessUnitColumns = "business_unit_id, tenant_id, name, status, created_at"

const insertBusinessUnitSQL = `
        INSERT INTO ` + BusinessUnitsTable + ` (business_unit_id, tenant_id, name, status)
        VALUES ($1,$2,$3,$4)`

// CreateMany inserts business units under the resolved scope through the
// chunked batch writer.
func (s *BusinessUnitStore) CreateMany(ctx context.Context, scope tenant.Scope, recs []BusinessUnitRecord) error {
	ops := make([]BatchOp, 0, len(recs))
	for _, rec := range recs {
		if err := requireScopedWrite(scope, rec.TenantID); err != nil {
			return err
		}
		ops = append(ops, BatchOp{
			SQL:  insertBusinessUnitSQL,
			Args: []any{rec.BusinessUnitID, rec.TenantID, rec.Name, rec.Status},
		})
	}
	_, err := s.batcher.Run(ctx, ops)
	return err
}

// Get returns a business unit under the resolved scope.
func (s *BusinessUnitStore) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (BusinessUnitRecord, error) {
	if err := requireScope(scope); err != nil {
		return BusinessUnitRecord{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE business_unit_id = $1 AND tenant_id = $2
    `, businessUnitColumns, BusinessUnitsTable), id, scope.TenantID)

	var rec BusinessUnitRecord
	if err := row.Scan(&rec.BusinessUnitID, &rec.TenantID, &rec.Name, &rec.Status, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BusinessUnitRecord{}, ErrBusinessUnitNotFound
		}
		return BusinessUnitRecord{}, err
	}
	return rec, nil
}

// ListByTenant returns every business unit under the resolved scope,
// insertion order first so "the first default unit" is deterministic.
func (s *BusinessUnitStore) ListByTenant(ctx context.Context, scope tenant.Scope) ([]BusinessUnitRecord, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY created_at, name
    `, businessUnitColumns, BusinessUnitsTable), scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list business units: %w", err)
	}
	defer rows.Close()

	units := make([]BusinessUnitRecord, 0)
	for rows.Next() {
		var rec BusinessUnitRecord
		if err := rows.Scan(&rec.BusinessUnitID, &rec.TenantID, &rec.Name, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan business unit: %w", err)
		}
		units = append(units, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business units: %w", err)
	}
	return units, nil
}

// DeleteByTenant removes every business unit under a tenant; compensation and
// orphan-cleanup path only.
func (s *BusinessUnitStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, BusinessUnitsTable), tenantID); err != nil {
		return fmt.Errorf("delete business units by tenant: %w", err)
	}
	return nil
}
