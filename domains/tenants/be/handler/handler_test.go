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

	"github.com/loopcollab/loop-saas/domains/tenants/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

// Minimal happy-path repos; the service package owns the behavioral tests.

type tenantRepoStub struct{ deleted bool }

func (s *tenantRepoStub) Create(ctx context.Context, rec docstore.TenantRecord) (docstore.TenantRecord, error) {
	return rec, nil
}
func (s *tenantRepoStub) Get(ctx context.Context, id uuid.UUID) (docstore.TenantRecord, error) {
	return docstore.TenantRecord{TenantID: id, Status: service.StatusActive}, nil
}
func (s *tenantRepoStub) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (docstore.TenantRecord, error) {
	return docstore.TenantRecord{TenantID: id, Status: status}, nil
}
func (s *tenantRepoStub) UpdatePlan(ctx context.Context, id uuid.UUID, plan string, userLimit int) (docstore.TenantRecord, error) {
	return docstore.TenantRecord{TenantID: id, Plan: plan, UserLimit: userLimit}, nil
}
func (s *tenantRepoStub) SetAdminIdentity(ctx context.Context, id uuid.UUID, adminUserID, adminEmail string) error {
	return nil
}
func (s *tenantRepoStub) Delete(ctx context.Context, id uuid.UUID) error {
	s.deleted = true
	return nil
}

type roleRepoStub struct{}

func (roleRepoStub) CreateMany(ctx context.Context, scope tenant.Scope, recs []docstore.RoleRecord) error {
	return nil
}
func (roleRepoStub) ListByTenant(ctx context.Context, scope tenant.Scope) ([]docstore.RoleRecord, error) {
	return nil, nil
}
func (roleRepoStub) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error { return nil }

type buRepoStub struct{}

func (buRepoStub) CreateMany(ctx context.Context, scope tenant.Scope, recs []docstore.BusinessUnitRecord) error {
	return nil
}
func (buRepoStub) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error { return nil }

type userRepoStub struct{ count int }

func (s *userRepoStub) Create(ctx context.Context, scope tenant.Scope, rec docstore.UserRecord) (docstore.UserRecord, error) {
	return rec, nil
}
func (s *userRepoStub) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return s.count, nil
}
func (s *userRepoStub) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error { return nil }

type opsLogStub struct{ entries []docstore.OperationLogEntry }

func (s *opsLogStub) Append(ctx context.Context, entry docstore.OperationLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}
func (s *opsLogStub) List(ctx context.Context, tenantID *uuid.UUID, limit int) ([]docstore.OperationLogEntry, error) {
	return s.entries, nil
}

type attemptStub struct{}

func (attemptStub) Begin(ctx context.Context, attemptID, tenantID uuid.UUID, step string) error {
	return nil
}
func (attemptStub) Advance(ctx context.Context, attemptID uuid.UUID, step string) error { return nil }
func (attemptStub) SetPrincipal(ctx context.Context, attemptID uuid.UUID, principalID string) error {
	return nil
}
func (attemptStub) MarkSucceeded(ctx context.Context, attemptID uuid.UUID) error        { return nil }
func (attemptStub) MarkFailed(ctx context.Context, attemptID uuid.UUID, c string) error { return nil }
func (attemptStub) MarkCompensated(ctx context.Context, attemptID uuid.UUID) error      { return nil }
func (attemptStub) ListFailed(ctx context.Context) ([]docstore.AttemptRecord, error)    { return nil, nil }

type gateStub struct{ deny bool }

func (g gateStub) RequirePlatformAdmin(ctx context.Context, creds *platformauth.Credentials) (authz.AdminCheck, error) {
	if g.deny {
		return authz.AdminCheck{}, apperrors.New(apperrors.CodePermissionDenied, "platform administrator access required")
	}
	return authz.AdminCheck{Effective: true}, nil
}

func newTestHandler(t *testing.T, deny bool) *Handler {
	t.Helper()
	svc := service.New(
		&tenantRepoStub{},
		roleRepoStub{},
		buRepoStub{},
		&userRepoStub{},
		&opsLogStub{},
		attemptStub{},
		identity.NewMemoryDirectory(),
		gateStub{deny: deny},
		zap.NewNop(),
		service.Options{},
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

func TestCreateTenantReturns201(t *testing.T) {
	t.Parallel()

	body := `{"companyName":"Acme","plan":"Starter","adminEmail":"admin@acme.com","adminPassword":"s3curepw","adminName":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/platform/tenants", strings.NewReader(body))

	rec := serve(newTestHandler(t, false), req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createTenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.TenantID)
	assert.Equal(t, 3, resp.RolesCreated)
	assert.Equal(t, 5, resp.BusinessUnitsCreated)
	assert.Contains(t, rec.Header().Get("Location"), resp.TenantID.String())
}

func TestCreateTenantRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/platform/tenants", strings.NewReader("{not json"))
	rec := serve(newTestHandler(t, false), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCreateTenantValidationProblemListsFields(t *testing.T) {
	t.Parallel()

	body := `{"companyName":"Acme","plan":"Starter","adminEmail":"not-an-email","adminPassword":"short","adminName":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/platform/tenants", strings.NewReader(body))
	rec := serve(newTestHandler(t, false), req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var details struct {
		Code   string              `json:"code"`
		Errors map[string][]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, string(apperrors.CodeInvalidArgument), details.Code)
	assert.Contains(t, details.Errors, "AdminEmail")
	assert.Contains(t, details.Errors, "AdminPassword")
}

func TestCreateTenantDeniedIsProblem403(t *testing.T) {
	t.Parallel()

	body := `{"companyName":"Acme","plan":"Starter","adminEmail":"admin@acme.com","adminPassword":"s3curepw","adminName":"Ada"}`
	req := httptest.NewRequest(http.MethodPost, "/platform/tenants", strings.NewReader(body))
	rec := serve(newTestHandler(t, true), req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var details struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	assert.Equal(t, string(apperrors.CodePermissionDenied), details.Code)
}

func TestUpdateTenantStatusBadUUID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPatch, "/platform/tenants/not-a-uuid/status", strings.NewReader(`{"status":"Suspended"}`))
	rec := serve(newTestHandler(t, false), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTenantPlanReturnsUpdatedCeiling(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPatch, "/platform/tenants/"+id.String()+"/plan", strings.NewReader(`{"plan":"Professional"}`))
	rec := serve(newTestHandler(t, false), req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp tenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Professional", resp.Plan)
	assert.Equal(t, 50, resp.UserLimit)
}

func TestDeleteOrphanedTenantNoContent(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/platform/tenants/"+id.String(), nil)
	rec := serve(newTestHandler(t, false), req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
