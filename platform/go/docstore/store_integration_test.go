package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

func TestStoreTenantScoping(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping docstore integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("loop"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, EnsureSchema(ctx, pool))
	// Second run must be a no-op.
	require.NoError(t, EnsureSchema(ctx, pool))

	tenants, err := NewTenantStore(pool)
	require.NoError(t, err)
	users, err := NewUserStore(pool)
	require.NoError(t, err)
	roles, err := NewRoleStore(pool)
	require.NoError(t, err)
	opsLog, err := NewOperationsLogStore(pool)
	require.NoError(t, err)

	tenantA := uuid.New()
	tenantB := uuid.New()
	scopeA := tenant.Scope{TenantID: tenantA}
	scopeB := tenant.Scope{TenantID: tenantB}

	for _, tc := range []struct {
		id   uuid.UUID
		name string
	}{{tenantA, "Acme"}, {tenantB, "Beta"}} {
		_, err := tenants.Create(ctx, TenantRecord{
			TenantID:    tc.id,
			CompanyName: tc.name,
			Plan:        "Starter",
			Status:      "Active",
			UserLimit:   10,
			CreatedAt:   time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	roleA := uuid.New()
	require.NoError(t, roles.CreateMany(ctx, scopeA, []RoleRecord{{
		RoleID:      roleA,
		TenantID:    tenantA,
		Name:        "Admin",
		Permissions: []string{"ManageUsers"},
		IsSystem:    true,
	}}))

	// Writing tenant B's role through tenant A's scope must be rejected.
	err = roles.CreateMany(ctx, scopeA, []RoleRecord{{
		RoleID:   uuid.New(),
		TenantID: tenantB,
		Name:     "Admin",
	}})
	require.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	_, err = users.Create(ctx, scopeA, UserRecord{
		UserID:   "principal-a",
		TenantID: tenantA,
		Email:    "a@acme.com",
		FullName: "Alice",
		RoleID:   roleA,
		RoleName: "Admin",
		Active:   true,
	})
	require.NoError(t, err)

	// The store-level unique constraint closes the duplicate-email race.
	_, err = users.Create(ctx, scopeA, UserRecord{
		UserID:   "principal-a2",
		TenantID: tenantA,
		Email:    "a@acme.com",
		FullName: "Copy",
		RoleID:   roleA,
	})
	require.ErrorIs(t, err, ErrUserConflict)

	// Reads are fenced by scope.
	listA, err := users.ListByTenant(ctx, scopeA)
	require.NoError(t, err)
	require.Len(t, listA, 1)

	listB, err := users.ListByTenant(ctx, scopeB)
	require.NoError(t, err)
	require.Empty(t, listB)

	_, err = users.Get(ctx, scopeB, "principal-a")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = users.ListByTenant(ctx, tenant.Scope{})
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	// Operations log is newest-first and tenant-filterable.
	for _, kind := range []string{"create", "update"} {
		require.NoError(t, opsLog.Append(ctx, OperationLogEntry{
			TenantID:    tenantA,
			Kind:        kind,
			PerformedBy: "ops",
			Details:     map[string]string{"kind": kind},
		}))
	}
	entries, err := opsLog.List(ctx, &tenantA, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "update", entries[0].Kind)

	// Plan update round trip.
	updated, err := tenants.UpdatePlan(ctx, tenantA, "Professional", 50)
	require.NoError(t, err)
	require.Equal(t, "Professional", updated.Plan)
	require.Equal(t, 50, updated.UserLimit)
}
