// Package authz centralizes the authorization decisions the request handlers
// share: platform-admin gating with a two-source check, tenant fencing and
// owner checks. Handlers translate the returned app errors into problem
// details; this package never writes HTTP responses itself.
package authz

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
)

// AdminVerdict tags how the two admin sources (signed claims and the stored
// profile flag) relate for a caller.
type AdminVerdict string

const (
	AdminBothTrue  AdminVerdict = "both-true"
	AdminBothFalse AdminVerdict = "both-false"
	AdminDisagree  AdminVerdict = "disagree"
)

// AdminCheck is the outcome of a platform-admin evaluation. Effective is the
// permissive OR of both sources: a stale claims bag must not lock out a real
// admin (and the repair endpoints exist to resync claims).
type AdminCheck struct {
	Verdict   AdminVerdict
	Claims    bool
	Stored    bool
	Effective bool
}

// AdminFlagsReader reads the persisted admin flags for a user profile.
type AdminFlagsReader interface {
	GetAdminFlags(ctx context.Context, userID string) (docstore.AdminFlags, error)
}

// Reverifier performs the secondary re-authentication ordinary users must
// pass for self-service operations on their own account. Platform admins
// skip it.
type Reverifier func(ctx context.Context, creds *auth.Credentials) error

// Gate evaluates authorization rules against the caller's credentials.
type Gate struct {
	users    AdminFlagsReader
	reverify Reverifier
	logger   *zap.Logger
}

func NewGate(users AdminFlagsReader, reverify Reverifier, logger *zap.Logger) *Gate {
	if users == nil {
		panic("authz.NewGate: users reader must not be nil")
	}
	if logger == nil {
		panic("authz.NewGate: logger must not be nil")
	}
	return &Gate{users: users, reverify: reverify, logger: logger}
}

// CheckPlatformAdmin evaluates both admin sources without denying. A
// disagreement between the signed claims and the stored flag is a
// data-quality signal and is logged at Warn.
func (g *Gate) CheckPlatformAdmin(ctx context.Context, creds *auth.Credentials) (AdminCheck, error) {
	if creds == nil {
		return AdminCheck{}, apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
	}

	check := AdminCheck{Claims: creds.PlatformAdmin}

	flags, err := g.users.GetAdminFlags(ctx, creds.ID)
	switch {
	case errors.Is(err, docstore.ErrUserNotFound):
		// No stored profile: only the claims source speaks.
	case err != nil:
		return AdminCheck{}, apperrors.Wrap(err, apperrors.CodeInternal, "read stored admin flags")
	default:
		check.Stored = flags.PlatformAdmin
	}

	check.Effective = check.Claims || check.Stored
	switch {
	case check.Claims && check.Stored:
		check.Verdict = AdminBothTrue
	case !check.Claims && !check.Stored:
		check.Verdict = AdminBothFalse
	default:
		check.Verdict = AdminDisagree
		g.logger.Warn("platform admin sources disagree",
			zap.String("userId", creds.ID),
			zap.Bool("claims", check.Claims),
			zap.Bool("stored", check.Stored))
	}

	return check, nil
}

// RequirePlatformAdmin denies callers that are not platform admins under the
// two-source check.
func (g *Gate) RequirePlatformAdmin(ctx context.Context, creds *auth.Credentials) (AdminCheck, error) {
	check, err := g.CheckPlatformAdmin(ctx, creds)
	if err != nil {
		return AdminCheck{}, err
	}
	if !check.Effective {
		return AdminCheck{}, apperrors.New(apperrors.CodePermissionDenied, "platform administrator access required")
	}
	return check, nil
}

// RequireSameTenant fences a caller to resources of its own tenant. Platform
// admins bypass the fence; tenant users must carry a tenant claim matching
// the resource's tenant.
func (g *Gate) RequireSameTenant(ctx context.Context, creds *auth.Credentials, resourceTenantID string) error {
	if creds == nil {
		return apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
	}

	check, err := g.CheckPlatformAdmin(ctx, creds)
	if err != nil {
		return err
	}
	if check.Effective {
		return nil
	}

	if creds.TenantID == nil || *creds.TenantID == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "caller carries no tenant membership")
	}
	if *creds.TenantID != resourceTenantID {
		return apperrors.New(apperrors.CodePermissionDenied, "resource belongs to a different tenant")
	}
	return nil
}

// RequireSelf allows a caller to act on its own account. Ordinary users must
// additionally pass the configured re-verification step; platform admins may
// act on any account and skip re-verification.
func (g *Gate) RequireSelf(ctx context.Context, creds *auth.Credentials, ownerID string) error {
	if creds == nil {
		return apperrors.New(apperrors.CodeUnauthenticated, "authentication required")
	}

	check, err := g.CheckPlatformAdmin(ctx, creds)
	if err != nil {
		return err
	}
	if check.Effective {
		return nil
	}

	if creds.ID != ownerID {
		return apperrors.New(apperrors.CodePermissionDenied, "operation restricted to the account owner")
	}
	if g.reverify != nil {
		if err := g.reverify(ctx, creds); err != nil {
			return apperrors.Wrap(err, apperrors.CodePermissionDenied, "re-verification failed")
		}
	}
	return nil
}
