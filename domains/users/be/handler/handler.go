// Package handler exposes user provisioning and claims repair over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/domains/users/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	"github.com/loopcollab/loop-saas/platform/go/problem"
	"github.com/loopcollab/loop-saas/platform/go/requesttrace"
)

// Handler wires the users service to the HTTP surface.
type Handler struct {
	svc      *service.Service
	logger   *zap.Logger
	validate *validator.Validate
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, validate: validator.New()}
}

// Register mounts the user routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.CreateUser)
	r.Get("/users", h.GetTenantUsers)
	r.Put("/users/{userId}/claims", h.SetUserCustomClaims)
	r.Post("/platform/claims/repair", h.FixAllUserClaims)
}

type createUserRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=6"`
	Name           string  `json:"name" validate:"required"`
	RoleID         string  `json:"roleId" validate:"required,uuid"`
	BusinessUnitID *string `json:"businessUnitId,omitempty" validate:"omitempty,uuid"`
	Designation    *string `json:"designation,omitempty"`
	TenantID       string  `json:"tenantId" validate:"required,uuid"`
}

// CreateUser implements POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := service.CreateUserInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		RoleID:      uuid.MustParse(req.RoleID),
		TenantID:    uuid.MustParse(req.TenantID),
		Designation: req.Designation,
	}
	if req.BusinessUnitID != nil {
		buID := uuid.MustParse(*req.BusinessUnitID)
		input.BusinessUnitID = &buID
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	result, err := h.svc.CreateUser(r.Context(), audit, input)
	if err != nil {
		h.writeError(w, err, "create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"userId": result.UserID})
}

type userResponse struct {
	UserID         string     `json:"userId"`
	TenantID       uuid.UUID  `json:"tenantId"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	RoleID         uuid.UUID  `json:"roleId"`
	RoleName       string     `json:"roleName"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId,omitempty"`
	Designation    *string    `json:"designation,omitempty"`
	Active         bool       `json:"active"`
	TenantAdmin    bool       `json:"isTenantAdmin"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// GetTenantUsers implements GET /users.
func (h *Handler) GetTenantUsers(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if raw := r.URL.Query().Get("tenantId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			problem.WriteError(w, apperrors.New(apperrors.CodeInvalidArgument, "tenantId must be a UUID"))
			return
		}
		tenantID = &id
	}

	users, err := h.svc.GetTenantUsers(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err, "list tenant users")
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{
			UserID:         u.UserID,
			TenantID:       u.TenantID,
			Email:          u.Email,
			Name:           u.FullName,
			RoleID:         u.RoleID,
			RoleName:       u.RoleName,
			BusinessUnitID: u.BusinessUnitID,
			Designation:    u.Designation,
			Active:         u.Active,
			TenantAdmin:    u.TenantAdmin,
			CreatedAt:      u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type setClaimsRequest struct {
	TenantID        *string `json:"tenantId,omitempty" validate:"omitempty,uuid"`
	IsPlatformAdmin bool    `json:"isPlatformAdmin"`
	IsTenantAdmin   bool    `json:"isTenantAdmin"`
}

// SetUserCustomClaims implements PUT /users/{userId}/claims.
func (h *Handler) SetUserCustomClaims(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var req setClaimsRequest
	if !h.decode(w, r, &req) {
		return
	}

	claims := identity.Claims{
		TenantID:      req.TenantID,
		PlatformAdmin: req.IsPlatformAdmin,
		TenantAdmin:   req.IsTenantAdmin,
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	if err := h.svc.SetUserCustomClaims(r.Context(), audit, userID, claims); err != nil {
		h.writeError(w, err, "set user claims")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FixAllUserClaims implements POST /platform/claims/repair.
func (h *Handler) FixAllUserClaims(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())
	repaired, err := h.svc.FixAllUserClaims(r.Context(), audit)
	if err != nil {
		h.writeError(w, err, "repair user claims")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"repaired": repaired})
}

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
