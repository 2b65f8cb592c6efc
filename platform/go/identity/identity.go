package identity

import (
	"context"
	"strings"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
)

// MinPasswordLength mirrors the identity provider's own floor; validated here
// so the failure surfaces before any directory call.
const MinPasswordLength = 6

// Claims is the signed authorization bag carried by every Principal.
// TenantID is nil only for platform administrators.
type Claims struct {
	TenantID      *string
	PlatformAdmin bool
	TenantAdmin   bool
}

// ToMap renders the claims in the shape stored at the identity provider.
func (c Claims) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"isPlatformAdmin": c.PlatformAdmin,
		"isTenantAdmin":   c.TenantAdmin,
	}
	if c.TenantID != nil && *c.TenantID != "" {
		m["tenantId"] = *c.TenantID
	}
	return m
}

// ClaimsFromMap parses a stored claims map, tolerating absent keys.
func ClaimsFromMap(m map[string]interface{}) Claims {
	var c Claims
	if m == nil {
		return c
	}
	if v, ok := m["tenantId"].(string); ok && v != "" {
		c.TenantID = &v
	}
	if v, ok := m["isPlatformAdmin"].(bool); ok {
		c.PlatformAdmin = v
	}
	if v, ok := m["isTenantAdmin"].(bool); ok {
		c.TenantAdmin = v
	}
	return c
}

// Principal is an identity-directory record. ID is the provider-issued opaque
// identifier; the tenant-scoped user profile shares the same id.
type Principal struct {
	ID            string
	Email         string
	DisplayName   string
	Claims        Claims
	EmailVerified bool
	Disabled      bool
}

// NewPrincipal carries the fields required to create a directory record.
type NewPrincipal struct {
	Email       string
	Password    string
	DisplayName string
}

// Validate enforces the directory-side argument rules before any mutation.
func (p NewPrincipal) Validate() error {
	if strings.TrimSpace(p.Email) == "" || !strings.Contains(p.Email, "@") {
		return apperrors.New(apperrors.CodeInvalidArgument, "a valid email is required")
	}
	if len(p.Password) < MinPasswordLength {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Directory wraps the identity provider. Implementations must map duplicate
// emails to an already-exists error and missing principals to not-found, so
// callers never have to inspect provider-specific failures.
type Directory interface {
	CreatePrincipal(ctx context.Context, p NewPrincipal) (Principal, error)
	DeletePrincipal(ctx context.Context, id string) error
	SetClaims(ctx context.Context, id string, claims Claims) error
	GetPrincipal(ctx context.Context, id string) (Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (Principal, error)
}
