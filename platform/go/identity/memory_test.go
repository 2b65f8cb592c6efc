package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
)

func TestMemoryDirectoryCreateAndLookup(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	ctx := context.Background()

	created, err := d.CreatePrincipal(ctx, NewPrincipal{
		Email:       " Admin@Acme.com ",
		Password:    "secret1",
		DisplayName: "Acme Admin",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "admin@acme.com", created.Email)

	byEmail, err := d.GetPrincipalByEmail(ctx, "admin@acme.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)
}

func TestMemoryDirectoryDuplicateEmail(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	ctx := context.Background()

	_, err := d.CreatePrincipal(ctx, NewPrincipal{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = d.CreatePrincipal(ctx, NewPrincipal{Email: "A@B.com", Password: "secret1"})
	require.Equal(t, apperrors.CodeAlreadyExists, apperrors.CodeOf(err))
}

func TestMemoryDirectoryPasswordFloor(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	_, err := d.CreatePrincipal(context.Background(), NewPrincipal{Email: "a@b.com", Password: "short"})
	require.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	require.Equal(t, 0, d.Len())
}

func TestMemoryDirectoryClaims(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	ctx := context.Background()

	p, err := d.CreatePrincipal(ctx, NewPrincipal{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	tenantID := "tenant-1"
	require.NoError(t, d.SetClaims(ctx, p.ID, Claims{TenantID: &tenantID, TenantAdmin: true}))

	got, err := d.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Claims.TenantID)
	require.Equal(t, tenantID, *got.Claims.TenantID)
	require.True(t, got.Claims.TenantAdmin)
	require.False(t, got.Claims.PlatformAdmin)

	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(d.SetClaims(ctx, "missing", Claims{})))
}

func TestMemoryDirectoryDeleteFreesEmail(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory()
	ctx := context.Background()

	p, err := d.CreatePrincipal(ctx, NewPrincipal{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, d.DeletePrincipal(ctx, p.ID))

	_, err = d.GetPrincipalByEmail(ctx, "a@b.com")
	require.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = d.CreatePrincipal(ctx, NewPrincipal{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
}

func TestClaimsMapRoundTrip(t *testing.T) {
	t.Parallel()

	tenantID := "tenant-7"
	c := Claims{TenantID: &tenantID, TenantAdmin: true}

	m := c.ToMap()
	require.Equal(t, "tenant-7", m["tenantId"])
	require.Equal(t, false, m["isPlatformAdmin"])
	require.Equal(t, true, m["isTenantAdmin"])

	back := ClaimsFromMap(m)
	require.Equal(t, c, back)

	platform := Claims{PlatformAdmin: true}
	m = platform.ToMap()
	_, hasTenant := m["tenantId"]
	require.False(t, hasTenant)
	require.Equal(t, platform, ClaimsFromMap(m))
}
