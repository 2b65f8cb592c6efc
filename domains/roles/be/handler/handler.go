// Package handler exposes the permission migration entry point over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/domains/roles/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/problem"
)

// Handler wires the migration engine to the HTTP surface. The engine itself
// is unauthenticated; the handler applies the platform-admin gate.
type Handler struct {
	engine *service.Engine
	gate   *authz.Gate
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(engine *service.Engine, gate *authz.Gate, logger *zap.Logger) *Handler {
	if engine == nil {
		panic("migration engine is required")
	}
	if gate == nil {
		panic("authorization gate is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{engine: engine, gate: gate, logger: logger}
}

// Register mounts the migration route.
func (h *Handler) Register(r chi.Router) {
	r.Post("/platform/roles/migrate", h.FixRolePermissions)
}

// FixRolePermissions implements POST /platform/roles/migrate.
func (h *Handler) FixRolePermissions(w http.ResponseWriter, r *http.Request) {
	creds, _ := platformauth.UserFromContext(r.Context())
	if _, err := h.gate.RequirePlatformAdmin(r.Context(), creds); err != nil {
		problem.WriteError(w, err)
		return
	}

	updated, err := h.engine.FixRolePermissions(r.Context())
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInternal {
			h.logger.Error("role permission migration", zap.Error(err))
		}
		problem.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{"updated": updated})
}
