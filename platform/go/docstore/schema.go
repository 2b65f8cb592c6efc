package docstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Table names. The platform area (tenants, operations log, provisioning
// attempts) is not tenant-scoped; everything else carries a tenant_id column.
const (
	TenantsTable       = "tenants"
	OperationsLogTable = "tenant_operations_log"
	AttemptsTable      = "provisioning_attempts"
	UsersTable         = "users"
	RolesTable         = "roles"
	BusinessUnitsTable = "business_units"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS ` + TenantsTable + ` (
		tenant_id     UUID PRIMARY KEY,
		company_name  TEXT NOT NULL,
		plan          TEXT NOT NULL,
		status        TEXT NOT NULL,
		user_limit    INT NOT NULL,
		admin_user_id TEXT,
		admin_email   TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ` + OperationsLogTable + ` (
		entry_id     UUID PRIMARY KEY,
		tenant_id    UUID NOT NULL,
		kind         TEXT NOT NULL,
		performed_by TEXT NOT NULL,
		details      JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_operations_log_tenant_created
		ON ` + OperationsLogTable + ` (tenant_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ` + AttemptsTable + ` (
		attempt_id   UUID PRIMARY KEY,
		tenant_id    UUID NOT NULL,
		principal_id TEXT,
		step         TEXT NOT NULL,
		state        TEXT NOT NULL,
		last_error   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ` + UsersTable + ` (
		user_id          TEXT PRIMARY KEY,
		tenant_id        UUID,
		email            TEXT NOT NULL,
		full_name        TEXT NOT NULL,
		role_id          UUID,
		role_name        TEXT NOT NULL DEFAULT '',
		business_unit_id UUID,
		designation      TEXT,
		active           BOOLEAN NOT NULL DEFAULT TRUE,
		tenant_admin     BOOLEAN NOT NULL DEFAULT FALSE,
		platform_admin   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_email_unique UNIQUE (email)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tenant ON ` + UsersTable + ` (tenant_id)`,
	`CREATE TABLE IF NOT EXISTS ` + RolesTable + ` (
		role_id     UUID PRIMARY KEY,
		tenant_id   UUID NOT NULL,
		name        TEXT NOT NULL,
		permissions TEXT[] NOT NULL DEFAULT '{}',
		description TEXT NOT NULL DEFAULT '',
		is_default  BOOLEAN NOT NULL DEFAULT FALSE,
		is_system   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT roles_tenant_name_unique UNIQUE (tenant_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + BusinessUnitsTable + ` (
		business_unit_id UUID PRIMARY KEY,
		tenant_id        UUID NOT NULL,
		name             TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'Active',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT business_units_tenant_name_unique UNIQUE (tenant_id, name)
	)`,
}

// EnsureSchema applies the store DDL. Statements are idempotent, so running
// this on every startup is safe. The unique constraint on users(email) is the
// store-level guard that closes the duplicate-email race left open by the
// directory pre-check.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply store schema: %w", err)
		}
	}
	return nil
}
