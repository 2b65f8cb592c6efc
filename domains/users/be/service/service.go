// Package service implements user provisioning under an existing tenant and
// the claims-repair utilities.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	rolesvc "github.com/loopcollab/loop-saas/domains/roles/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	"github.com/loopcollab/loop-saas/platform/go/requesttrace"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

// CreateUserInput is the request to provision a user under a tenant.
type CreateUserInput struct {
	Email          string
	Password       string
	Name           string
	RoleID         uuid.UUID
	BusinessUnitID *uuid.UUID
	Designation    *string
	TenantID       uuid.UUID
}

// CreateUserResult reports the provider-issued id of the new user.
type CreateUserResult struct {
	UserID string
}

// UserRepo abstracts user profile persistence.
type UserRepo interface {
	Create(ctx context.Context, scope tenant.Scope, rec docstore.UserRecord) (docstore.UserRecord, error)
	ListByTenant(ctx context.Context, scope tenant.Scope) ([]docstore.UserRecord, error)
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
	SetTenantAdminFlag(ctx context.Context, scope tenant.Scope, userID string, tenantAdmin bool) error
	ListAllTenantScoped(ctx context.Context) ([]docstore.UserRecord, error)
	Delete(ctx context.Context, userID string) error
}

// RoleReader reads roles under a tenant scope.
type RoleReader interface {
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (docstore.RoleRecord, error)
}

// BusinessUnitReader reads business units under a tenant scope.
type BusinessUnitReader interface {
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (docstore.BusinessUnitRecord, error)
}

// TenantReader reads tenant rows, used for the plan ceiling.
type TenantReader interface {
	Get(ctx context.Context, id uuid.UUID) (docstore.TenantRecord, error)
}

// OperationsLog abstracts the append-only audit log.
type OperationsLog interface {
	Append(ctx context.Context, entry docstore.OperationLogEntry) error
}

// Gate is the slice of the authorization gate the service needs.
type Gate interface {
	RequirePlatformAdmin(ctx context.Context, creds *platformauth.Credentials) (authz.AdminCheck, error)
	RequireSameTenant(ctx context.Context, creds *platformauth.Credentials, resourceTenantID string) error
}

// Service provides user provisioning and claims repair.
type Service struct {
	users         UserRepo
	roles         RoleReader
	businessUnits BusinessUnitReader
	tenants       TenantReader
	opsLog        OperationsLog
	directory     identity.Directory
	gate          Gate
	logger        *zap.Logger
}

// cleanupAttempts bounds the principal-deletion retries after a failed step.
const cleanupAttempts = 3

// New constructs a Service with required dependencies.
func New(
	users UserRepo,
	roles RoleReader,
	businessUnits BusinessUnitReader,
	tenants TenantReader,
	opsLog OperationsLog,
	directory identity.Directory,
	gate Gate,
	logger *zap.Logger,
) *Service {
	if users == nil || roles == nil || businessUnits == nil || tenants == nil {
		panic("user stores are required")
	}
	if opsLog == nil {
		panic("operations log is required")
	}
	if directory == nil {
		panic("identity directory is required")
	}
	if gate == nil {
		panic("authorization gate is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{
		users:         users,
		roles:         roles,
		businessUnits: businessUnits,
		tenants:       tenants,
		opsLog:        opsLog,
		directory:     directory,
		gate:          gate,
		logger:        logger,
	}
}

// CreateUser provisions a principal plus its tenant-scoped profile. The caller
// must be a platform admin or belong to the target tenant.
func (s *Service) CreateUser(ctx context.Context, audit requesttrace.AuditInfo, input CreateUserInput) (CreateUserResult, error) {
	creds, _ := platformauth.UserFromContext(ctx)
	if input.TenantID == uuid.Nil {
		return CreateUserResult{}, apperrors.New(apperrors.CodeInvalidArgument, "a target tenant id is required")
	}
	if err := s.gate.RequireSameTenant(ctx, creds, input.TenantID.String()); err != nil {
		return CreateUserResult{}, err
	}
	if err := validateCreateUserInput(input); err != nil {
		return CreateUserResult{}, err
	}

	scope := tenant.Scope{TenantID: input.TenantID}

	// Referenced role and business unit must exist under the target tenant
	// before anything is created anywhere.
	role, err := s.roles.Get(ctx, scope, input.RoleID)
	if err != nil {
		if errors.Is(err, docstore.ErrRoleNotFound) {
			return CreateUserResult{}, apperrors.New(apperrors.CodeInvalidArgument, "role does not exist under the target tenant")
		}
		return CreateUserResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "load role")
	}
	if input.BusinessUnitID != nil {
		if _, err := s.businessUnits.Get(ctx, scope, *input.BusinessUnitID); err != nil {
			if errors.Is(err, docstore.ErrBusinessUnitNotFound) {
				return CreateUserResult{}, apperrors.New(apperrors.CodeInvalidArgument, "business unit does not exist under the target tenant")
			}
			return CreateUserResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "load business unit")
		}
	}

	if err := s.checkUserCeiling(ctx, input.TenantID); err != nil {
		return CreateUserResult{}, err
	}

	principal, err := s.directory.CreatePrincipal(ctx, identity.NewPrincipal{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.Name,
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeAlreadyExists) {
			return CreateUserResult{}, apperrors.New(apperrors.CodeAlreadyExists, "a principal with this email already exists")
		}
		return CreateUserResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "create principal")
	}

	tenantAdmin := role.Name == rolesvc.RoleAdmin
	tid := input.TenantID.String()
	if err := s.directory.SetClaims(ctx, principal.ID, identity.Claims{TenantID: &tid, TenantAdmin: tenantAdmin}); err != nil {
		s.deletePrincipal(ctx, principal.ID)
		return CreateUserResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "set claims; principal rolled back")
	}

	_, err = s.users.Create(ctx, scope, docstore.UserRecord{
		UserID:         principal.ID,
		TenantID:       input.TenantID,
		Email:          input.Email,
		FullName:       input.Name,
		RoleID:         role.RoleID,
		RoleName:       role.Name,
		BusinessUnitID: input.BusinessUnitID,
		Designation:    input.Designation,
		Active:         true,
		TenantAdmin:    tenantAdmin,
	})
	if err != nil {
		s.deletePrincipal(ctx, principal.ID)
		if errors.Is(err, docstore.ErrUserConflict) {
			return CreateUserResult{}, apperrors.New(apperrors.CodeAlreadyExists, "a user with this email already exists")
		}
		return CreateUserResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "write user profile; principal rolled back")
	}

	if err := s.opsLog.Append(ctx, docstore.OperationLogEntry{
		TenantID:    input.TenantID,
		Kind:        "create-user",
		PerformedBy: audit.Actor(),
		Details:     map[string]string{"userId": principal.ID, "email": input.Email, "role": role.Name},
	}); err != nil {
		s.logger.Error("append create-user log entry", zap.String("userId", principal.ID), zap.Error(err))
	}

	return CreateUserResult{UserID: principal.ID}, nil
}

// GetTenantUsers lists the profiles of one tenant. Platform admins must name
// the tenant; tenant callers always read their own, whatever they pass.
func (s *Service) GetTenantUsers(ctx context.Context, explicitTenantID *uuid.UUID) ([]docstore.UserRecord, error) {
	creds, _ := platformauth.UserFromContext(ctx)

	scope, err := tenant.Resolve(creds, explicitTenantID)
	if err != nil {
		return nil, err
	}

	users, err := s.users.ListByTenant(ctx, scope)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "list tenant users")
	}
	return users, nil
}

// SetUserCustomClaims overwrites a principal's claims bag and resyncs the
// profile display flag. Platform-admin only; idempotent.
func (s *Service) SetUserCustomClaims(ctx context.Context, audit requesttrace.AuditInfo, userID string, claims identity.Claims) error {
	creds, _ := platformauth.UserFromContext(ctx)
	if _, err := s.gate.RequirePlatformAdmin(ctx, creds); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "a user id is required")
	}

	if err := s.directory.SetClaims(ctx, userID, claims); err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "principal not found")
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, "set claims")
	}

	if claims.TenantID != nil {
		if tid, err := uuid.Parse(*claims.TenantID); err == nil {
			scope := tenant.Scope{TenantID: tid}
			if err := s.users.SetTenantAdminFlag(ctx, scope, userID, claims.TenantAdmin); err != nil && !errors.Is(err, docstore.ErrUserNotFound) {
				s.logger.Warn("resync tenant-admin display flag", zap.String("userId", userID), zap.Error(err))
			}
		}
	}

	s.logger.Info("user claims overwritten",
		zap.String("userId", userID),
		zap.String("performedBy", audit.Actor()))
	return nil
}

// FixAllUserClaims reconciles every tenant-scoped profile's claims from its
// stored tenant and role. Platform-admin only; returns the count repaired.
func (s *Service) FixAllUserClaims(ctx context.Context, audit requesttrace.AuditInfo) (int, error) {
	creds, _ := platformauth.UserFromContext(ctx)
	if _, err := s.gate.RequirePlatformAdmin(ctx, creds); err != nil {
		return 0, err
	}

	profiles, err := s.users.ListAllTenantScoped(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeInternal, "list user profiles")
	}

	repaired := 0
	for _, profile := range profiles {
		tid := profile.TenantID.String()
		desired := identity.Claims{TenantID: &tid, TenantAdmin: profile.RoleName == rolesvc.RoleAdmin}

		principal, err := s.directory.GetPrincipal(ctx, profile.UserID)
		if err != nil {
			// A profile without a principal is drift the sweep cannot repair.
			s.logger.Warn("profile has no matching principal",
				zap.String("userId", profile.UserID), zap.Error(err))
			continue
		}
		if claimsEqual(principal.Claims, desired) {
			continue
		}

		if err := s.directory.SetClaims(ctx, profile.UserID, desired); err != nil {
			return repaired, apperrors.Wrap(err, apperrors.CodeInternal, "repair user claims")
		}
		repaired++
	}

	s.logger.Info("user claims sweep finished",
		zap.Int("profiles", len(profiles)),
		zap.Int("repaired", repaired),
		zap.String("performedBy", audit.Actor()))
	return repaired, nil
}

// checkUserCeiling rejects creation beyond the tenant's plan limit.
func (s *Service) checkUserCeiling(ctx context.Context, tenantID uuid.UUID) error {
	rec, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, docstore.ErrTenantNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "tenant not found")
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, "load tenant")
	}

	count, err := s.users.CountByTenant(ctx, tenantID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "count tenant users")
	}
	if rec.UserLimit > 0 && count >= rec.UserLimit {
		return apperrors.Newf(apperrors.CodeFailedPrecondition, "tenant reached its user limit of %d", rec.UserLimit)
	}
	return nil
}

// deletePrincipal removes a principal left over from a failed step, with
// bounded retries. Best effort: a leak is logged, never surfaced.
func (s *Service) deletePrincipal(ctx context.Context, id string) {
	err := retry.Do(func() error {
		return s.directory.DeletePrincipal(ctx, id)
	},
		retry.Context(ctx),
		retry.Attempts(cleanupAttempts),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		s.logger.Error("rollback principal deletion failed", zap.String("principalId", id), zap.Error(err))
	}
}

func claimsEqual(a, b identity.Claims) bool {
	if a.PlatformAdmin != b.PlatformAdmin || a.TenantAdmin != b.TenantAdmin {
		return false
	}
	switch {
	case a.TenantID == nil && b.TenantID == nil:
		return true
	case a.TenantID == nil || b.TenantID == nil:
		return false
	default:
		return *a.TenantID == *b.TenantID
	}
}

func validateCreateUserInput(input CreateUserInput) error {
	fields := map[string][]string{}

	if !strings.Contains(input.Email, "@") || strings.TrimSpace(input.Email) == "" {
		fields["email"] = []string{"a valid email address is required"}
	}
	if len(input.Password) < identity.MinPasswordLength {
		fields["password"] = []string{"password must be at least 6 characters"}
	}
	if strings.TrimSpace(input.Name) == "" {
		fields["name"] = []string{"name is required"}
	}
	if input.RoleID == uuid.Nil {
		fields["roleId"] = []string{"a role id is required"}
	}

	if len(fields) > 0 {
		return apperrors.NewValidation("invalid user provisioning request", fields)
	}
	return nil
}
