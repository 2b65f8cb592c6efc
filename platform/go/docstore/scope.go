package docstore

import (
	"github.com/google/uuid"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

// requireScope rejects reads of tenant-scoped collections with an unresolved
// tenant id. An empty scope is a hard failure, never a "return everything".
func requireScope(scope tenant.Scope) error {
	if scope.TenantID == uuid.Nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "a resolved tenant scope is required")
	}
	return nil
}

// requireScopedWrite additionally checks that the payload's tenant id matches
// the resolved scope; a mismatch is a scoping bug upstream and is rejected.
func requireScopedWrite(scope tenant.Scope, payloadTenantID uuid.UUID) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if payloadTenantID != scope.TenantID {
		return apperrors.New(apperrors.CodePermissionDenied, "write payload tenant id does not match the resolved scope")
	}
	return nil
}
