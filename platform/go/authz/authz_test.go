package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
)

type adminFlagsReaderMock struct {
	getAdminFlags func(ctx context.Context, userID string) (docstore.AdminFlags, error)
}

func (m *adminFlagsReaderMock) GetAdminFlags(ctx context.Context, userID string) (docstore.AdminFlags, error) {
	return m.getAdminFlags(ctx, userID)
}

func storedFlags(platformAdmin bool) *adminFlagsReaderMock {
	return &adminFlagsReaderMock{
		getAdminFlags: func(ctx context.Context, userID string) (docstore.AdminFlags, error) {
			return docstore.AdminFlags{PlatformAdmin: platformAdmin}, nil
		},
	}
}

func strPtr(s string) *string { return &s }

func TestRequirePlatformAdminTwoSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		claimsAdmin bool
		storedAdmin bool
		wantVerdict AdminVerdict
		wantAllowed bool
	}{
		{"both sources agree true", true, true, AdminBothTrue, true},
		{"both sources agree false", false, false, AdminBothFalse, false},
		{"claims only", true, false, AdminDisagree, true},
		{"stored only", false, true, AdminDisagree, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gate := NewGate(storedFlags(tc.storedAdmin), nil, zap.NewNop())
			creds := &auth.Credentials{ID: "user-1", PlatformAdmin: tc.claimsAdmin}

			check, err := gate.RequirePlatformAdmin(context.Background(), creds)
			if tc.wantAllowed {
				require.NoError(t, err)
				assert.Equal(t, tc.wantVerdict, check.Verdict)
				assert.True(t, check.Effective)
			} else {
				assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
			}
		})
	}
}

func TestCheckPlatformAdminWarnsOnDisagreement(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	gate := NewGate(storedFlags(true), nil, zap.New(core))

	check, err := gate.CheckPlatformAdmin(context.Background(), &auth.Credentials{ID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, AdminDisagree, check.Verdict)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "platform admin sources disagree", logs.All()[0].Message)
}

func TestCheckPlatformAdminMissingProfileUsesClaims(t *testing.T) {
	t.Parallel()

	reader := &adminFlagsReaderMock{
		getAdminFlags: func(ctx context.Context, userID string) (docstore.AdminFlags, error) {
			return docstore.AdminFlags{}, docstore.ErrUserNotFound
		},
	}
	gate := NewGate(reader, nil, zap.NewNop())

	check, err := gate.CheckPlatformAdmin(context.Background(), &auth.Credentials{ID: "user-1", PlatformAdmin: true})
	require.NoError(t, err)
	assert.True(t, check.Effective)
	assert.Equal(t, AdminDisagree, check.Verdict)
}

func TestRequirePlatformAdminMissingCredentials(t *testing.T) {
	t.Parallel()

	gate := NewGate(storedFlags(false), nil, zap.NewNop())
	_, err := gate.RequirePlatformAdmin(context.Background(), nil)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
}

func TestRequireSameTenant(t *testing.T) {
	t.Parallel()

	gate := NewGate(storedFlags(false), nil, zap.NewNop())

	t.Run("matching tenant allowed", func(t *testing.T) {
		t.Parallel()
		creds := &auth.Credentials{ID: "user-1", TenantID: strPtr("tenant-a")}
		assert.NoError(t, gate.RequireSameTenant(context.Background(), creds, "tenant-a"))
	})

	t.Run("different tenant denied", func(t *testing.T) {
		t.Parallel()
		creds := &auth.Credentials{ID: "user-1", TenantID: strPtr("tenant-a")}
		err := gate.RequireSameTenant(context.Background(), creds, "tenant-b")
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
	})

	t.Run("no tenant claim rejected", func(t *testing.T) {
		t.Parallel()
		err := gate.RequireSameTenant(context.Background(), &auth.Credentials{ID: "user-1"}, "tenant-a")
		assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
	})

	t.Run("platform admin bypasses fence", func(t *testing.T) {
		t.Parallel()
		creds := &auth.Credentials{ID: "admin-1", PlatformAdmin: true}
		assert.NoError(t, gate.RequireSameTenant(context.Background(), creds, "tenant-b"))
	})
}

func TestRequireSelf(t *testing.T) {
	t.Parallel()

	t.Run("owner passes reverification", func(t *testing.T) {
		t.Parallel()
		called := false
		gate := NewGate(storedFlags(false), func(ctx context.Context, creds *auth.Credentials) error {
			called = true
			return nil
		}, zap.NewNop())

		err := gate.RequireSelf(context.Background(), &auth.Credentials{ID: "user-1"}, "user-1")
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("owner failing reverification denied", func(t *testing.T) {
		t.Parallel()
		gate := NewGate(storedFlags(false), func(ctx context.Context, creds *auth.Credentials) error {
			return errors.New("password mismatch")
		}, zap.NewNop())

		err := gate.RequireSelf(context.Background(), &auth.Credentials{ID: "user-1"}, "user-1")
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
	})

	t.Run("non-owner denied", func(t *testing.T) {
		t.Parallel()
		gate := NewGate(storedFlags(false), nil, zap.NewNop())
		err := gate.RequireSelf(context.Background(), &auth.Credentials{ID: "user-1"}, "user-2")
		assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
	})

	t.Run("platform admin skips reverification", func(t *testing.T) {
		t.Parallel()
		gate := NewGate(storedFlags(true), func(ctx context.Context, creds *auth.Credentials) error {
			t.Fatal("reverifier must not run for platform admins")
			return nil
		}, zap.NewNop())

		assert.NoError(t, gate.RequireSelf(context.Background(), &auth.Credentials{ID: "admin-1"}, "user-2"))
	})
}
