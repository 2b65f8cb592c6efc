// Package service implements tenant lifecycle operations: the provisioning
// saga, status/plan updates, orphan cleanup and the operations-log read.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	"github.com/loopcollab/loop-saas/platform/go/requesttrace"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

// Tenant status closed set. StatusProvisioningFailed is internal: it marks a
// tenant row whose rollback could not remove it and is never settable through
// the update endpoint.
const (
	StatusActive             = "Active"
	StatusSuspended          = "Suspended"
	StatusInactive           = "Inactive"
	StatusProvisioningFailed = "provisioning_failed"
)

// Plans and their user ceilings.
const (
	PlanStarter      = "Starter"
	PlanProfessional = "Professional"
	PlanEnterprise   = "Enterprise"
)

var planUserLimits = map[string]int{
	PlanStarter:      10,
	PlanProfessional: 50,
	PlanEnterprise:   250,
}

// DefaultBusinessUnitNames provisioned for every new tenant, in order. The
// first entry hosts the initial admin profile.
var DefaultBusinessUnitNames = []string{"General", "Operations", "Finance", "Sales", "People"}

// UserLimitForPlan returns the ceiling for a known plan.
func UserLimitForPlan(plan string) (int, bool) {
	limit, ok := planUserLimits[plan]
	return limit, ok
}

// ValidStatus reports whether s is an externally settable tenant status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusInactive:
		return true
	default:
		return false
	}
}

// CreateTenantInput is the request to provision a tenant with its first admin.
type CreateTenantInput struct {
	CompanyName   string
	Plan          string
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// CreateTenantResult reports what the saga created.
type CreateTenantResult struct {
	TenantID             uuid.UUID
	AdminUserID          string
	RolesCreated         int
	BusinessUnitsCreated int
}

// TenantRepo abstracts tenant row persistence.
type TenantRepo interface {
	Create(ctx context.Context, rec docstore.TenantRecord) (docstore.TenantRecord, error)
	Get(ctx context.Context, id uuid.UUID) (docstore.TenantRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (docstore.TenantRecord, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, plan string, userLimit int) (docstore.TenantRecord, error)
	SetAdminIdentity(ctx context.Context, id uuid.UUID, adminUserID, adminEmail string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoleRepo abstracts tenant-scoped role persistence.
type RoleRepo interface {
	CreateMany(ctx context.Context, scope tenant.Scope, recs []docstore.RoleRecord) error
	ListByTenant(ctx context.Context, scope tenant.Scope) ([]docstore.RoleRecord, error)
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

// BusinessUnitRepo abstracts tenant-scoped business unit persistence.
type BusinessUnitRepo interface {
	CreateMany(ctx context.Context, scope tenant.Scope, recs []docstore.BusinessUnitRecord) error
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

// UserRepo abstracts user profile persistence.
type UserRepo interface {
	Create(ctx context.Context, scope tenant.Scope, rec docstore.UserRecord) (docstore.UserRecord, error)
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error
}

// OperationsLog abstracts the append-only audit log.
type OperationsLog interface {
	Append(ctx context.Context, entry docstore.OperationLogEntry) error
	List(ctx context.Context, tenantID *uuid.UUID, limit int) ([]docstore.OperationLogEntry, error)
}

// AttemptRepo persists the saga step cursor.
type AttemptRepo interface {
	Begin(ctx context.Context, attemptID, tenantID uuid.UUID, step string) error
	Advance(ctx context.Context, attemptID uuid.UUID, step string) error
	SetPrincipal(ctx context.Context, attemptID uuid.UUID, principalID string) error
	MarkSucceeded(ctx context.Context, attemptID uuid.UUID) error
	MarkFailed(ctx context.Context, attemptID uuid.UUID, cause string) error
	MarkCompensated(ctx context.Context, attemptID uuid.UUID) error
	ListFailed(ctx context.Context) ([]docstore.AttemptRecord, error)
}

// AdminGate is the slice of the authorization gate the service needs.
type AdminGate interface {
	RequirePlatformAdmin(ctx context.Context, creds *platformauth.Credentials) (authz.AdminCheck, error)
}

// Service provides tenant lifecycle operations.
type Service struct {
	tenants       TenantRepo
	roles         RoleRepo
	businessUnits BusinessUnitRepo
	users         UserRepo
	opsLog        OperationsLog
	attempts      AttemptRepo
	directory     identity.Directory
	gate          AdminGate
	logger        *zap.Logger
	stepTimeout   time.Duration
}

// Options tune the saga execution.
type Options struct {
	// StepTimeout bounds each saga step. Zero means DefaultStepTimeout.
	StepTimeout time.Duration
}

// DefaultStepTimeout bounds a single saga step; a hung backing call becomes a
// step failure with rollback instead of hanging the whole request.
const DefaultStepTimeout = 15 * time.Second

// New constructs a Service with required dependencies.
func New(
	tenants TenantRepo,
	roles RoleRepo,
	businessUnits BusinessUnitRepo,
	users UserRepo,
	opsLog OperationsLog,
	attempts AttemptRepo,
	directory identity.Directory,
	gate AdminGate,
	logger *zap.Logger,
	opts Options,
) *Service {
	if tenants == nil || roles == nil || businessUnits == nil || users == nil {
		panic("tenant stores are required")
	}
	if opsLog == nil || attempts == nil {
		panic("operations log and attempt stores are required")
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

	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	return &Service{
		tenants:       tenants,
		roles:         roles,
		businessUnits: businessUnits,
		users:         users,
		opsLog:        opsLog,
		attempts:      attempts,
		directory:     directory,
		gate:          gate,
		logger:        logger,
		stepTimeout:   timeout,
	}
}

// CreateTenant provisions a tenant, its defaults and its first administrator
// as one saga. Platform-admin only.
func (s *Service) CreateTenant(ctx context.Context, audit requesttrace.AuditInfo, input CreateTenantInput) (CreateTenantResult, error) {
	if err := s.requirePlatformAdmin(ctx); err != nil {
		return CreateTenantResult{}, err
	}
	if err := validateCreateInput(input); err != nil {
		return CreateTenantResult{}, err
	}

	// Duplicate admin email is the only idempotency guard across invocations.
	if _, err := s.directory.GetPrincipalByEmail(ctx, input.AdminEmail); err == nil {
		return CreateTenantResult{}, apperrors.New(apperrors.CodeAlreadyExists, "a principal with the admin email already exists")
	} else if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return CreateTenantResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "pre-check admin email")
	}

	saga := newTenantSaga(s, audit, input)
	return saga.run(ctx)
}

// UpdateTenantStatus moves a tenant inside the Active/Suspended/Inactive set.
// Platform-admin only; logged.
func (s *Service) UpdateTenantStatus(ctx context.Context, audit requesttrace.AuditInfo, tenantID uuid.UUID, status string) (docstore.TenantRecord, error) {
	if err := s.requirePlatformAdmin(ctx); err != nil {
		return docstore.TenantRecord{}, err
	}
	if !ValidStatus(status) {
		return docstore.TenantRecord{}, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown tenant status %q", status)
	}

	rec, err := s.tenants.UpdateStatus(ctx, tenantID, status)
	if err != nil {
		return docstore.TenantRecord{}, s.mapTenantErr(err, "update tenant status")
	}

	s.appendLog(ctx, tenantID, "update", audit, map[string]string{"field": "status", "value": status})
	return rec, nil
}

// UpdateTenantPlan changes the plan and the derived user ceiling.
// Platform-admin only; logged.
func (s *Service) UpdateTenantPlan(ctx context.Context, audit requesttrace.AuditInfo, tenantID uuid.UUID, plan string) (docstore.TenantRecord, error) {
	if err := s.requirePlatformAdmin(ctx); err != nil {
		return docstore.TenantRecord{}, err
	}
	limit, ok := UserLimitForPlan(plan)
	if !ok {
		return docstore.TenantRecord{}, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown plan %q", plan)
	}

	rec, err := s.tenants.UpdatePlan(ctx, tenantID, plan, limit)
	if err != nil {
		return docstore.TenantRecord{}, s.mapTenantErr(err, "update tenant plan")
	}

	s.appendLog(ctx, tenantID, "update", audit, map[string]string{"field": "plan", "value": plan})
	return rec, nil
}

// DeleteOrphanedTenant removes a tenant that has no user profiles left,
// together with its roles and business units. Platform-admin only.
func (s *Service) DeleteOrphanedTenant(ctx context.Context, audit requesttrace.AuditInfo, tenantID uuid.UUID) error {
	if err := s.requirePlatformAdmin(ctx); err != nil {
		return err
	}

	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return s.mapTenantErr(err, "load tenant")
	}

	count, err := s.users.CountByTenant(ctx, tenantID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "count tenant users")
	}
	if count > 0 {
		return apperrors.Newf(apperrors.CodeFailedPrecondition, "tenant still has %d user profiles", count)
	}

	if err := s.roles.DeleteByTenant(ctx, tenantID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "delete tenant roles")
	}
	if err := s.businessUnits.DeleteByTenant(ctx, tenantID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "delete tenant business units")
	}
	if err := s.tenants.Delete(ctx, tenantID); err != nil {
		return s.mapTenantErr(err, "delete tenant")
	}

	s.appendLog(ctx, tenantID, "delete", audit, nil)
	return nil
}

// GetOperationsLog returns audit entries, newest first. Platform-admin only.
func (s *Service) GetOperationsLog(ctx context.Context, tenantID *uuid.UUID, limit int) ([]docstore.OperationLogEntry, error) {
	if err := s.requirePlatformAdmin(ctx); err != nil {
		return nil, err
	}
	entries, err := s.opsLog.List(ctx, tenantID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "read operations log")
	}
	return entries, nil
}

func (s *Service) requirePlatformAdmin(ctx context.Context) error {
	creds, _ := platformauth.UserFromContext(ctx)
	_, err := s.gate.RequirePlatformAdmin(ctx, creds)
	return err
}

func (s *Service) mapTenantErr(err error, op string) error {
	if errors.Is(err, docstore.ErrTenantNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "tenant not found")
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, op)
}

// appendLog records a completed privileged operation. Log failures are
// surfaced in the logs but never fail the operation itself, except during the
// saga where the entry is a first-class step.
func (s *Service) appendLog(ctx context.Context, tenantID uuid.UUID, kind string, audit requesttrace.AuditInfo, details map[string]string) {
	entry := docstore.OperationLogEntry{
		TenantID:    tenantID,
		Kind:        kind,
		PerformedBy: audit.Actor(),
		Details:     details,
	}
	if err := s.opsLog.Append(ctx, entry); err != nil {
		s.logger.Error("append operations log entry",
			zap.String("tenantId", tenantID.String()),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

func validateCreateInput(input CreateTenantInput) error {
	fields := map[string][]string{}

	if strings.TrimSpace(input.CompanyName) == "" {
		fields["companyName"] = []string{"company name is required"}
	}
	if _, ok := UserLimitForPlan(input.Plan); !ok {
		fields["plan"] = []string{"plan must be one of Starter, Professional, Enterprise"}
	}
	if !looksLikeEmail(input.AdminEmail) {
		fields["adminEmail"] = []string{"a valid email address is required"}
	}
	if len(input.AdminPassword) < identity.MinPasswordLength {
		fields["adminPassword"] = []string{"password must be at least 6 characters"}
	}
	if strings.TrimSpace(input.AdminName) == "" {
		fields["adminName"] = []string{"admin name is required"}
	}

	if len(fields) > 0 {
		return apperrors.NewValidation("invalid tenant provisioning request", fields)
	}
	return nil
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}
