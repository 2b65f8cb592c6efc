package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAttemptNotFound indicates a missing provisioning attempt row.
var ErrAttemptNotFound = errors.New("provisioning attempt not found")

// Attempt states. An attempt is running while the saga advances, succeeded
// when the final step commits, failed when a step failed and compensation is
// still owed, and compensated once cleanup finished.
const (
	AttemptStateRunning     = "running"
	AttemptStateSucceeded   = "succeeded"
	AttemptStateFailed      = "failed"
	AttemptStateCompensated = "compensated"
)

// AttemptRecord is the persisted step cursor for one saga attempt. The cursor
// names the last step that fully completed, so a crash mid-saga can resume
// compensation from the right place instead of relying on in-memory control
// flow.
type AttemptRecord struct {
	AttemptID   uuid.UUID `db:"attempt_id"`
	TenantID    uuid.UUID `db:"tenant_id"`
	PrincipalID *string   `db:"principal_id"`
	Step        string    `db:"step"`
	State       string    `db:"state"`
	LastError   *string   `db:"last_error"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// AttemptStore persists saga attempt cursors in the platform area.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates a store; assumes EnsureSchema already ran.
func NewAttemptStore(pool *pgxpool.Pool) (*AttemptStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AttemptStore{pool: pool}, nil
}

// Begin inserts a new running attempt.
func (s *AttemptStore) Begin(ctx context.Context, attemptID, tenantID uuid.UUID, step string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (attempt_id, tenant_id, step, state)
        VALUES ($1,$2,$3,$4)
    `, AttemptsTable), attemptID, tenantID, step, AttemptStateRunning); err != nil {
		return fmt.Errorf("begin attempt: %w", err)
	}
	return nil
}

// Advance moves the cursor to the step that just completed.
func (s *AttemptStore) Advance(ctx context.Context, attemptID uuid.UUID, step string) error {
	return s.update(ctx, attemptID, fmt.Sprintf(`
        UPDATE %s SET step = $2, updated_at = NOW() WHERE attempt_id = $1
    `, AttemptsTable), step)
}

// SetPrincipal records the directory id created in the first step, so a
// resumed compensation knows which Principal to delete.
func (s *AttemptStore) SetPrincipal(ctx context.Context, attemptID uuid.UUID, principalID string) error {
	return s.update(ctx, attemptID, fmt.Sprintf(`
        UPDATE %s SET principal_id = $2, updated_at = NOW() WHERE attempt_id = $1
    `, AttemptsTable), principalID)
}

// MarkSucceeded finalizes a completed attempt.
func (s *AttemptStore) MarkSucceeded(ctx context.Context, attemptID uuid.UUID) error {
	return s.update(ctx, attemptID, fmt.Sprintf(`
        UPDATE %s SET state = '%s', updated_at = NOW() WHERE attempt_id = $1
    `, AttemptsTable, AttemptStateSucceeded))
}

// MarkFailed records the step failure that triggered compensation.
func (s *AttemptStore) MarkFailed(ctx context.Context, attemptID uuid.UUID, cause string) error {
	return s.update(ctx, attemptID, fmt.Sprintf(`
        UPDATE %s SET state = '%s', last_error = $2, updated_at = NOW() WHERE attempt_id = $1
    `, AttemptsTable, AttemptStateFailed), cause)
}

// MarkCompensated records that cleanup for a failed attempt finished.
func (s *AttemptStore) MarkCompensated(ctx context.Context, attemptID uuid.UUID) error {
	return s.update(ctx, attemptID, fmt.Sprintf(`
        UPDATE %s SET state = '%s', updated_at = NOW() WHERE attempt_id = $1
    `, AttemptsTable, AttemptStateCompensated))
}

// ListFailed returns attempts still owing compensation, oldest first.
func (s *AttemptStore) ListFailed(ctx context.Context) ([]AttemptRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT attempt_id, tenant_id, principal_id, step, state, last_error, created_at, updated_at
        FROM %s WHERE state = '%s' ORDER BY created_at
    `, AttemptsTable, AttemptStateFailed))
	if err != nil {
		return nil, fmt.Errorf("list failed attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]AttemptRecord, 0)
	for rows.Next() {
		var rec AttemptRecord
		if err := rows.Scan(&rec.AttemptID, &rec.TenantID, &rec.PrincipalID, &rec.Step, &rec.State, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func (s *AttemptStore) update(ctx context.Context, attemptID uuid.UUID, sql string, extraArgs ...any) error {
	args := append([]any{attemptID}, extraArgs...)
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}
