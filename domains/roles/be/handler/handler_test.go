package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/domains/roles/be/service"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
)

type roleSourceStub struct {
	roles []docstore.RoleRecord
}

func (s *roleSourceStub) ListSystemRoles(ctx context.Context) ([]docstore.RoleRecord, error) {
	return s.roles, nil
}

func (s *roleSourceStub) ListSystemRolesByTenant(ctx context.Context, tenantID uuid.UUID) ([]docstore.RoleRecord, error) {
	return s.roles, nil
}

func (s *roleSourceStub) UpdatePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error {
	for i := range s.roles {
		if s.roles[i].RoleID == roleID {
			s.roles[i].Permissions = permissions
		}
	}
	return nil
}

type flagsStub struct{}

func (flagsStub) GetAdminFlags(ctx context.Context, userID string) (docstore.AdminFlags, error) {
	return docstore.AdminFlags{}, docstore.ErrUserNotFound
}

func newTestHandler(t *testing.T, src *roleSourceStub) *Handler {
	t.Helper()
	engine := service.NewEngine(src, service.NewMigrationState(), zap.NewNop())
	gate := authz.NewGate(flagsStub{}, nil, zap.NewNop())
	return New(engine, gate, zap.NewNop())
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func adminRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/platform/roles/migrate", nil)
	return req.WithContext(platformauth.WithUser(req.Context(), &platformauth.Credentials{ID: "ops-1", PlatformAdmin: true}))
}

func TestFixRolePermissionsReturnsCount(t *testing.T) {
	t.Parallel()

	src := &roleSourceStub{roles: []docstore.RoleRecord{
		{RoleID: uuid.New(), TenantID: uuid.New(), Name: service.RoleEmployee, Permissions: []string{"view_reports"}, IsSystem: true},
	}}

	rec := serve(newTestHandler(t, src), adminRequest())

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["updated"])

	// The rewrite is idempotent: a second call reports zero.
	rec = serve(newTestHandler(t, src), adminRequest())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp["updated"])
}

func TestFixRolePermissionsRequiresAuthentication(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/platform/roles/migrate", nil)
	rec := serve(newTestHandler(t, &roleSourceStub{}), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFixRolePermissionsDeniesNonAdmin(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/platform/roles/migrate", nil)
	req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.Credentials{ID: "member-1"}))
	rec := serve(newTestHandler(t, &roleSourceStub{}), req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
