package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/auth"
)

// Scope is the resolved tenant boundary for one operation. Every store and
// gate call takes it explicitly; there is no hidden current-tenant accessor.
// PlatformAdmin marks a scope that was resolved from an explicit target id by
// a platform administrator rather than from the caller's own claims.
type Scope struct {
	TenantID      uuid.UUID
	PlatformAdmin bool
}

type ctxKey struct{}

// WithScope returns a derived context carrying the resolved Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, scope)
}

// FromContext extracts the Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Scope{}, false
	}
	scope, ok := v.(Scope)
	return scope, ok
}

// Resolve derives the tenant Scope for an operation from the caller's claims
// and an optional explicit target tenant id.
//
// Platform admins must always name the target tenant; there is no implicit
// "all tenants" scope. Tenant-scoped callers always operate on their own
// tenant: a differing explicit id is rejected rather than honored.
func Resolve(creds *auth.Credentials, explicit *uuid.UUID) (Scope, error) {
	if creds == nil {
		return Scope{}, apperrors.New(apperrors.CodeUnauthenticated, "caller identity is required")
	}

	if creds.PlatformAdmin {
		if explicit == nil || *explicit == uuid.Nil {
			return Scope{}, apperrors.New(apperrors.CodeInvalidArgument, "platform administrators must supply a target tenant id")
		}
		return Scope{TenantID: *explicit, PlatformAdmin: true}, nil
	}

	if creds.TenantID == nil || *creds.TenantID == "" {
		return Scope{}, apperrors.New(apperrors.CodeUnauthenticated, "caller claims carry no tenant id")
	}

	own, err := uuid.Parse(*creds.TenantID)
	if err != nil {
		return Scope{}, apperrors.New(apperrors.CodeUnauthenticated, "caller claims carry a malformed tenant id")
	}

	if explicit != nil && *explicit != uuid.Nil && *explicit != own {
		return Scope{}, apperrors.New(apperrors.CodePermissionDenied, "cross-tenant access is not permitted")
	}

	return Scope{TenantID: own}, nil
}
