package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/domains/users/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

// Minimal happy-path stubs; the service package owns the behavioral tests.

var (
	testTenantID = uuid.MustParse("6c1f2d3e-0000-4000-8000-000000000001")
	testRoleID   = uuid.MustParse("6c1f2d3e-0000-4000-8000-000000000002")
)

type userRepoStub struct{ created []docstore.UserRecord }

func (s *userRepoStub) Create(ctx context.Context, scope tenant.Scope, rec docstore.UserRecord) (docstore.UserRecord, error) {
	s.created = append(s.created, rec)
	return rec, nil
}
func (s *userRepoStub) ListByTenant(ctx context.Context, scope tenant.Scope) ([]docstore.UserRecord, error) {
	return s.created, nil
}
func (s *userRepoStub) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return len(s.created), nil
}
func (s *userRepoStub) SetTenantAdminFlag(ctx context.Context, scope tenant.Scope, userID string, tenantAdmin bool) error {
	return nil
}
func (s *userRepoStub) ListAllTenantScoped(ctx context.Context) ([]docstore.UserRecord, error) {
	return s.created, nil
}
func (s *userRepoStub) Delete(ctx context.Context, userID string) error { return nil }

type roleReaderStub struct{}

func (roleReaderStub) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (docstore.RoleRecord, error) {
	if id != testRoleID {
		return docstore.RoleRecord{}, docstore.ErrRoleNotFound
	}
	return docstore.RoleRecord{RoleID: id, TenantID: scope.TenantID, Name: "Employee"}, nil
}

type buReaderStub struct{}

func (buReaderStub) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (docstore.BusinessUnitRecord, error) {
	return docstore.BusinessUnitRecord{BusinessUnitID: id, TenantID: scope.TenantID}, nil
}

type tenantReaderStub struct{}

func (tenantReaderStub) Get(ctx context.Context, id uuid.UUID) (docstore.TenantRecord, error) {
	return docstore.TenantRecord{TenantID: id, UserLimit: 10}, nil
}

type opsLogStub struct{}

func (opsLogStub) Append(ctx context.Context, entry docstore.OperationLogEntry) error { return nil }

type gateStub struct{ deny bool }

func (g gateStub) RequirePlatformAdmin(ctx context.Context, creds *platformauth.Credentials) (authz.AdminCheck, error) {
	if g.deny {
		return authz.AdminCheck{}, apperrors.New(apperrors.CodePermissionDenied, "platform administrator access required")
	}
	return authz.AdminCheck{Effective: true}, nil
}

func (g gateStub) RequireSameTenant(ctx context.Context, creds *platformauth.Credentials, resourceTenantID string) error {
	if g.deny {
		return apperrors.New(apperrors.CodePermissionDenied, "tenant mismatch")
	}
	return nil
}

func newTestHandler(t *testing.T, deny bool) *Handler {
	t.Helper()
	svc := service.New(
		&userRepoStub{},
		roleReaderStub{},
		buReaderStub{},
		tenantReaderStub{},
		opsLogStub{},
		identity.NewMemoryDirectory(),
		gateStub{deny: deny},
		zap.NewNop(),
	)
	return New(svc, zap.NewNop())
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func adminRequest(req *http.Request) *http.Request {
	return req.WithContext(platformauth.WithUser(req.Context(), &platformauth.Credentials{
		ID:            "platform-admin",
		PlatformAdmin: true,
	}))
}

func TestCreateUserReturns201(t *testing.T) {
	t.Parallel()

	body := `{"email":"eve@acme.com","password":"s3curepw","name":"Eve","roleId":"` +
		testRoleID.String() + `","tenantId":"` + testTenantID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	rec := serve(newTestHandler(t, false), adminRequest(req))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["userId"])
}

func TestCreateUserValidationProblemListsFields(t *testing.T) {
	t.Parallel()

	body := `{"email":"not-an-email","password":"short","name":"","roleId":"nope","tenantId":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	rec := serve(newTestHandler(t, false), adminRequest(req))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var details struct {
		Code   string               `json:"code"`
		Errors *map[string][]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, string(apperrors.CodeInvalidArgument), details.Code)
	require.NotNil(t, details.Errors)
	assert.Contains(t, *details.Errors, "Email")
	assert.Contains(t, *details.Errors, "RoleID")
}

func TestCreateUserDeniedIsProblem403(t *testing.T) {
	t.Parallel()

	body := `{"email":"eve@acme.com","password":"s3curepw","name":"Eve","roleId":"` +
		testRoleID.String() + `","tenantId":"` + testTenantID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	rec := serve(newTestHandler(t, true), adminRequest(req))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetTenantUsersRejectsBadTenantID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/users?tenantId=banana", nil)
	rec := serve(newTestHandler(t, false), adminRequest(req))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTenantUsersReturnsItems(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, false)

	body := `{"email":"eve@acme.com","password":"s3curepw","name":"Eve","roleId":"` +
		testRoleID.String() + `","tenantId":"` + testTenantID.String() + `"}`
	create := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, serve(h, adminRequest(create)).Code)

	list := httptest.NewRequest(http.MethodGet, "/users?tenantId="+testTenantID.String(), nil)
	rec := serve(h, adminRequest(list))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "eve@acme.com", resp.Items[0]["email"])
}

func TestFixAllUserClaimsReturnsCount(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/platform/claims/repair", nil)
	rec := serve(newTestHandler(t, false), adminRequest(req))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp["repaired"])
}
