// Package handler exposes tenant lifecycle operations over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/domains/tenants/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/problem"
	"github.com/loopcollab/loop-saas/platform/go/requesttrace"
)

// Handler wires the tenants service to the HTTP surface.
type Handler struct {
	svc      *service.Service
	logger   *zap.Logger
	validate *validator.Validate
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, validate: validator.New()}
}

// Register mounts the platform tenant routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/platform/tenants", h.CreateTenant)
	r.Patch("/platform/tenants/{tenantId}/status", h.UpdateTenantStatus)
	r.Patch("/platform/tenants/{tenantId}/plan", h.UpdateTenantPlan)
	r.Delete("/platform/tenants/{tenantId}", h.DeleteOrphanedTenant)
	r.Get("/platform/operations-log", h.GetOperationsLog)
}

type createTenantRequest struct {
	CompanyName   string `json:"companyName" validate:"required"`
	Plan          string `json:"plan" validate:"required"`
	AdminEmail    string `json:"adminEmail" validate:"required,email"`
	AdminPassword string `json:"adminPassword" validate:"required,min=6"`
	AdminName     string `json:"adminName" validate:"required"`
}

type createTenantResponse struct {
	TenantID             uuid.UUID `json:"tenantId"`
	AdminUserID          string    `json:"adminUserId"`
	RolesCreated         int       `json:"rolesCreated"`
	BusinessUnitsCreated int       `json:"businessUnitsCreated"`
}

// CreateTenant implements POST /platform/tenants.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !h.decode(w, r, &req) {
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	result, err := h.svc.CreateTenant(r.Context(), audit, service.CreateTenantInput{
		CompanyName:   req.CompanyName,
		Plan:          req.Plan,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
		AdminName:     req.AdminName,
	})
	if err != nil {
		h.writeError(w, err, "create tenant")
		return
	}

	w.Header().Set("Location", "/api/v1/platform/tenants/"+result.TenantID.String())
	writeJSON(w, http.StatusCreated, createTenantResponse{
		TenantID:             result.TenantID,
		AdminUserID:          result.AdminUserID,
		RolesCreated:         result.RolesCreated,
		BusinessUnitsCreated: result.BusinessUnitsCreated,
	})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type tenantResponse struct {
	TenantID    uuid.UUID `json:"tenantId"`
	CompanyName string    `json:"companyName"`
	Plan        string    `json:"plan"`
	Status      string    `json:"status"`
	UserLimit   int       `json:"userLimit"`
	AdminEmail  *string   `json:"adminEmail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UpdateTenantStatus implements PATCH /platform/tenants/{tenantId}/status.
func (h *Handler) UpdateTenantStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	rec, err := h.svc.UpdateTenantStatus(r.Context(), audit, tenantID, req.Status)
	if err != nil {
		h.writeError(w, err, "update tenant status")
		return
	}

	writeJSON(w, http.StatusOK, tenantResponse{
		TenantID:    rec.TenantID,
		CompanyName: rec.CompanyName,
		Plan:        rec.Plan,
		Status:      rec.Status,
		UserLimit:   rec.UserLimit,
		AdminEmail:  rec.AdminEmail,
		CreatedAt:   rec.CreatedAt,
	})
}

type updatePlanRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// UpdateTenantPlan implements PATCH /platform/tenants/{tenantId}/plan.
func (h *Handler) UpdateTenantPlan(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	var req updatePlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	rec, err := h.svc.UpdateTenantPlan(r.Context(), audit, tenantID, req.Plan)
	if err != nil {
		h.writeError(w, err, "update tenant plan")
		return
	}

	writeJSON(w, http.StatusOK, tenantResponse{
		TenantID:    rec.TenantID,
		CompanyName: rec.CompanyName,
		Plan:        rec.Plan,
		Status:      rec.Status,
		UserLimit:   rec.UserLimit,
		AdminEmail:  rec.AdminEmail,
		CreatedAt:   rec.CreatedAt,
	})
}

// DeleteOrphanedTenant implements DELETE /platform/tenants/{tenantId}.
func (h *Handler) DeleteOrphanedTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	if err := h.svc.DeleteOrphanedTenant(r.Context(), audit, tenantID); err != nil {
		h.writeError(w, err, "delete orphaned tenant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type operationsLogEntry struct {
	EntryID     uuid.UUID         `json:"entryId"`
	TenantID    uuid.UUID         `json:"tenantId"`
	Kind        string            `json:"kind"`
	PerformedBy string            `json:"performedBy"`
	Details     map[string]string `json:"details,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// GetOperationsLog implements GET /platform/operations-log.
func (h *Handler) GetOperationsLog(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if raw := r.URL.Query().Get("tenantId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			problem.WriteError(w, apperrors.New(apperrors.CodeInvalidArgument, "tenantId must be a UUID"))
			return
		}
		tenantID = &id
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			problem.WriteError(w, apperrors.New(apperrors.CodeInvalidArgument, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.svc.GetOperationsLog(r.Context(), tenantID, limit)
	if err != nil {
		h.writeError(w, err, "read operations log")
		return
	}

	out := make([]operationsLogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, operationsLogEntry{
			EntryID:     e.EntryID,
			TenantID:    e.TenantID,
			Kind:        e.Kind,
			PerformedBy: e.PerformedBy,
			Details:     e.Details,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) tenantIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		problem.WriteError(w, apperrors.New(apperrors.CodeInvalidArgument, "tenantId must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// decode parses and validates the JSON body, emitting the problem response on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		problem.WriteError(w, apperrors.New(apperrors.CodeInvalidArgument, "request body must be valid JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		problem.WriteError(w, apperrors.NewValidation("invalid request body", validationFields(err)))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	if apperrors.CodeOf(err) == apperrors.CodeInternal {
		h.logger.Error(op, zap.Error(err))
	}
	problem.WriteError(w, err)
}

func validationFields(err error) map[string][]string {
	fields := map[string][]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["body"] = []string{err.Error()}
		return fields
	}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], "failed validation rule "+fe.Tag())
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
