package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OperationLogEntry is one append-only audit record. Entries are written only
// after the operation they describe has completed, and are never mutated.
type OperationLogEntry struct {
	EntryID     uuid.UUID         `db:"entry_id"`
	TenantID    uuid.UUID         `db:"tenant_id"`
	Kind        string            `db:"kind"`
	PerformedBy string            `db:"performed_by"`
	Details     map[string]string `db:"details"`
	CreatedAt   time.Time         `db:"created_at"`
}

// OperationsLogStore provides append and read access to the audit log.
// There is no update or delete path on purpose.
type OperationsLogStore struct {
	pool *pgxpool.Pool
}

// NewOperationsLogStore creates a store; assumes EnsureSchema already ran.
func NewOperationsLogStore(pool *pgxpool.Pool) (*OperationsLogStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &OperationsLogStore{pool: pool}, nil
}

// Append writes one completed-operation record.
func (s *OperationsLogStore) Append(ctx context.Context, entry OperationLogEntry) error {
	if entry.EntryID == uuid.Nil {
		entry.EntryID = uuid.New()
	}
	if entry.Details == nil {
		entry.Details = map[string]string{}
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (entry_id, tenant_id, kind, performed_by, details)
        VALUES ($1,$2,$3,$4,$5)
    `, OperationsLogTable),
		entry.EntryID, entry.TenantID, entry.Kind, entry.PerformedBy, entry.Details,
	); err != nil {
		return fmt.Errorf("append operation log: %w", err)
	}
	return nil
}

// List returns entries newest first, optionally filtered by tenant, capped at limit.
func (s *OperationsLogStore) List(ctx context.Context, tenantID *uuid.UUID, limit int) ([]OperationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := fmt.Sprintf(`
        SELECT entry_id, tenant_id, kind, performed_by, details, created_at
        FROM %s`, OperationsLogTable)
	args := []any{}
	if tenantID != nil && *tenantID != uuid.Nil {
		args = append(args, *tenantID)
		query += fmt.Sprintf(" WHERE tenant_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operation log: %w", err)
	}
	defer rows.Close()

	entries := make([]OperationLogEntry, 0)
	for rows.Next() {
		var entry OperationLogEntry
		if err := rows.Scan(&entry.EntryID, &entry.TenantID, &entry.Kind, &entry.PerformedBy, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan operation log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation log: %w", err)
	}
	return entries, nil
}
