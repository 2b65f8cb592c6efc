package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	rolesvc "github.com/loopcollab/loop-saas/domains/roles/be/service"
	"github.com/loopcollab/loop-saas/platform/go/apperrors"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	"github.com/loopcollab/loop-saas/platform/go/requesttrace"
	"github.com/loopcollab/loop-saas/platform/go/tenant"
)

// Saga steps, strictly sequential. The persisted cursor always names the step
// in progress, so after a crash every step strictly before the cursor is known
// complete and compensable.
const (
	StepCreatePrincipal    = "create-principal"
	StepSetClaims          = "set-claims"
	StepWriteTenant        = "write-tenant"
	StepWriteRoles         = "write-roles"
	StepWriteBusinessUnits = "write-business-units"
	StepWriteAdminProfile  = "write-admin-profile"
	StepAppendLog          = "append-log"
)

// sagaSteps is the forward execution order.
var sagaSteps = []string{
	StepCreatePrincipal,
	StepSetClaims,
	StepWriteTenant,
	StepWriteRoles,
	StepWriteBusinessUnits,
	StepWriteAdminProfile,
	StepAppendLog,
}

// compensationAttempts bounds the best-effort rollback retries per action.
const compensationAttempts = 3

type tenantSaga struct {
	svc   *Service
	audit requesttrace.AuditInfo
	input CreateTenantInput

	attemptID uuid.UUID
	tenantID  uuid.UUID
	scope     tenant.Scope

	principalID          string
	adminRoleID          uuid.UUID
	firstBusinessUnitID  uuid.UUID
	rolesCreated         int
	businessUnitsCreated int

	completed []string
}

func newTenantSaga(svc *Service, audit requesttrace.AuditInfo, input CreateTenantInput) *tenantSaga {
	tenantID := uuid.New()
	return &tenantSaga{
		svc:       svc,
		audit:     audit,
		input:     input,
		attemptID: uuid.New(),
		tenantID:  tenantID,
		scope:     tenant.Scope{TenantID: tenantID},
	}
}

func (g *tenantSaga) run(ctx context.Context) (CreateTenantResult, error) {
	if err := g.svc.attempts.Begin(ctx, g.attemptID, g.tenantID, sagaSteps[0]); err != nil {
		return CreateTenantResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "record provisioning attempt")
	}

	for i, step := range sagaSteps {
		if err := g.runStep(ctx, step); err != nil {
			g.fail(ctx, step, err)
			return CreateTenantResult{}, apperrors.Wrap(err, apperrors.CodeInternal,
				fmt.Sprintf("tenant provisioning failed at %s; rollback applied", step))
		}
		g.completed = append(g.completed, step)
		if i+1 < len(sagaSteps) {
			if err := g.svc.attempts.Advance(ctx, g.attemptID, sagaSteps[i+1]); err != nil {
				// Losing the cursor only degrades crash recovery; the saga goes on.
				g.svc.logger.Error("advance provisioning cursor",
					zap.String("attemptId", g.attemptID.String()), zap.Error(err))
			}
		}
	}

	if err := g.svc.attempts.MarkSucceeded(ctx, g.attemptID); err != nil {
		g.svc.logger.Error("mark provisioning attempt succeeded",
			zap.String("attemptId", g.attemptID.String()), zap.Error(err))
	}

	g.svc.logger.Info("tenant provisioned",
		zap.String("tenantId", g.tenantID.String()),
		zap.String("adminUserId", g.principalID),
		zap.String("plan", g.input.Plan))

	return CreateTenantResult{
		TenantID:             g.tenantID,
		AdminUserID:          g.principalID,
		RolesCreated:         g.rolesCreated,
		BusinessUnitsCreated: g.businessUnitsCreated,
	}, nil
}

// runStep executes one step under the per-step deadline. A timeout is a step
// failure like any other and triggers rollback.
func (g *tenantSaga) runStep(ctx context.Context, step string) error {
	stepCtx, cancel := context.WithTimeout(ctx, g.svc.stepTimeout)
	defer cancel()

	switch step {
	case StepCreatePrincipal:
		return g.createPrincipal(stepCtx)
	case StepSetClaims:
		return g.setClaims(stepCtx)
	case StepWriteTenant:
		return g.writeTenant(stepCtx)
	case StepWriteRoles:
		return g.writeRoles(stepCtx)
	case StepWriteBusinessUnits:
		return g.writeBusinessUnits(stepCtx)
	case StepWriteAdminProfile:
		return g.writeAdminProfile(stepCtx)
	case StepAppendLog:
		return g.appendCreateLog(stepCtx)
	default:
		return fmt.Errorf("unknown saga step %q", step)
	}
}

func (g *tenantSaga) createPrincipal(ctx context.Context) error {
	principal, err := g.svc.directory.CreatePrincipal(ctx, identity.NewPrincipal{
		Email:       g.input.AdminEmail,
		Password:    g.input.AdminPassword,
		DisplayName: g.input.AdminName,
	})
	if err != nil {
		return err
	}
	g.principalID = principal.ID

	if err := g.svc.attempts.SetPrincipal(ctx, g.attemptID, principal.ID); err != nil {
		g.svc.logger.Error("record principal on provisioning attempt",
			zap.String("attemptId", g.attemptID.String()), zap.Error(err))
	}
	return nil
}

func (g *tenantSaga) setClaims(ctx context.Context) error {
	tid := g.tenantID.String()
	return g.svc.directory.SetClaims(ctx, g.principalID, identity.Claims{
		TenantID:    &tid,
		TenantAdmin: true,
	})
}

func (g *tenantSaga) writeTenant(ctx context.Context) error {
	limit, _ := UserLimitForPlan(g.input.Plan)
	_, err := g.svc.tenants.Create(ctx, docstore.TenantRecord{
		TenantID:    g.tenantID,
		CompanyName: g.input.CompanyName,
		Plan:        g.input.Plan,
		Status:      StatusActive,
		UserLimit:   limit,
		AdminUserID: &g.principalID,
		AdminEmail:  &g.input.AdminEmail,
		CreatedAt:   time.Now().UTC(),
	})
	return err
}

func (g *tenantSaga) writeRoles(ctx context.Context) error {
	names := rolesvc.DefaultRoleNames()
	recs := make([]docstore.RoleRecord, 0, len(names))
	for _, name := range names {
		template, _ := rolesvc.TemplateFor(name)
		rec := docstore.RoleRecord{
			RoleID:      uuid.New(),
			TenantID:    g.tenantID,
			Name:        name,
			Permissions: rolesvc.PermissionStrings(template),
			IsDefault:   true,
			IsSystem:    true,
		}
		if name == rolesvc.RoleAdmin {
			g.adminRoleID = rec.RoleID
		}
		recs = append(recs, rec)
	}

	if err := g.svc.roles.CreateMany(ctx, g.scope, recs); err != nil {
		return err
	}
	g.rolesCreated = len(recs)
	return nil
}

func (g *tenantSaga) writeBusinessUnits(ctx context.Context) error {
	recs := make([]docstore.BusinessUnitRecord, 0, len(DefaultBusinessUnitNames))
	for i, name := range DefaultBusinessUnitNames {
		rec := docstore.BusinessUnitRecord{
			BusinessUnitID: uuid.New(),
			TenantID:       g.tenantID,
			Name:           name,
			Status:         "Active",
		}
		if i == 0 {
			g.firstBusinessUnitID = rec.BusinessUnitID
		}
		recs = append(recs, rec)
	}

	if err := g.svc.businessUnits.CreateMany(ctx, g.scope, recs); err != nil {
		return err
	}
	g.businessUnitsCreated = len(recs)
	return nil
}

func (g *tenantSaga) writeAdminProfile(ctx context.Context) error {
	buID := g.firstBusinessUnitID
	_, err := g.svc.users.Create(ctx, g.scope, docstore.UserRecord{
		UserID:         g.principalID,
		TenantID:       g.tenantID,
		Email:          g.input.AdminEmail,
		FullName:       g.input.AdminName,
		RoleID:         g.adminRoleID,
		RoleName:       rolesvc.RoleAdmin,
		BusinessUnitID: &buID,
		Active:         true,
		TenantAdmin:    true,
	})
	return err
}

func (g *tenantSaga) appendCreateLog(ctx context.Context) error {
	return g.svc.opsLog.Append(ctx, docstore.OperationLogEntry{
		TenantID:    g.tenantID,
		Kind:        "create",
		PerformedBy: g.audit.Actor(),
		Details: map[string]string{
			"companyName": g.input.CompanyName,
			"plan":        g.input.Plan,
			"adminEmail":  g.input.AdminEmail,
		},
	})
}

// fail records the failure and runs compensations for every completed step in
// reverse order. The original step error is what the caller sees; compensation
// outcomes only affect the attempt record and the logs.
func (g *tenantSaga) fail(ctx context.Context, step string, cause error) {
	g.svc.logger.Error("tenant provisioning step failed",
		zap.String("attemptId", g.attemptID.String()),
		zap.String("tenantId", g.tenantID.String()),
		zap.String("step", step),
		zap.Error(cause))

	if err := g.svc.attempts.MarkFailed(ctx, g.attemptID, fmt.Sprintf("%s: %v", step, cause)); err != nil {
		g.svc.logger.Error("mark provisioning attempt failed",
			zap.String("attemptId", g.attemptID.String()), zap.Error(err))
	}

	var principalID *string
	if g.principalID != "" {
		principalID = &g.principalID
	}
	clean := g.svc.compensate(ctx, g.attemptID, g.tenantID, principalID, g.completed)
	if clean {
		if err := g.svc.attempts.MarkCompensated(ctx, g.attemptID); err != nil {
			g.svc.logger.Error("mark provisioning attempt compensated",
				zap.String("attemptId", g.attemptID.String()), zap.Error(err))
		}
	}
}

// compensate undoes completed steps in reverse order with bounded retries.
// Returns true when every compensation went through. Detached from the saga
// struct so crash recovery can reuse it from a persisted attempt record.
func (s *Service) compensate(ctx context.Context, attemptID, tenantID uuid.UUID, principalID *string, completed []string) bool {
	clean := true
	for i := len(completed) - 1; i >= 0; i-- {
		var err error
		switch completed[i] {
		case StepAppendLog:
			// The log is append-only; a create entry from a rolled-back saga
			// never exists because AppendLog is the final step.
		case StepWriteAdminProfile:
			err = s.retryCompensation(ctx, "delete admin profile", func() error {
				return s.users.DeleteByTenant(ctx, tenantID)
			})
		case StepWriteBusinessUnits:
			err = s.retryCompensation(ctx, "delete business units", func() error {
				return s.businessUnits.DeleteByTenant(ctx, tenantID)
			})
		case StepWriteRoles:
			err = s.retryCompensation(ctx, "delete roles", func() error {
				return s.roles.DeleteByTenant(ctx, tenantID)
			})
		case StepWriteTenant:
			err = s.retryCompensation(ctx, "delete tenant row", func() error {
				return s.tenants.Delete(ctx, tenantID)
			})
			if err != nil {
				// Durable marker for manual cleanup instead of a ghost Active tenant.
				if _, stErr := s.tenants.UpdateStatus(ctx, tenantID, StatusProvisioningFailed); stErr != nil {
					s.logger.Error("mark tenant provisioning_failed",
						zap.String("tenantId", tenantID.String()), zap.Error(stErr))
				}
			}
		case StepSetClaims:
			// Claims die with the principal; nothing separate to undo.
		case StepCreatePrincipal:
			if principalID != nil {
				err = s.retryCompensation(ctx, "delete principal", func() error {
					return s.directory.DeletePrincipal(ctx, *principalID)
				})
			}
		}

		if err != nil {
			clean = false
			s.logger.Error("compensation failed",
				zap.String("attemptId", attemptID.String()),
				zap.String("tenantId", tenantID.String()),
				zap.String("step", completed[i]),
				zap.Error(err))
		}
	}
	return clean
}

func (s *Service) retryCompensation(ctx context.Context, action string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(compensationAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying compensation",
				zap.String("action", action),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

// ResumeFailedAttempts finishes compensation for attempts a previous process
// left in the failed state, using the persisted step cursor. Intended to run
// once at startup.
func (s *Service) ResumeFailedAttempts(ctx context.Context) (int, error) {
	failed, err := s.attempts.ListFailed(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeInternal, "list failed provisioning attempts")
	}

	resumed := 0
	for _, attempt := range failed {
		completed := stepsBefore(attempt.Step)
		// A recorded principal means StepCreatePrincipal finished even when
		// the cursor never advanced past it.
		if attempt.PrincipalID != nil && len(completed) == 0 {
			completed = []string{StepCreatePrincipal}
		}

		if s.compensate(ctx, attempt.AttemptID, attempt.TenantID, attempt.PrincipalID, completed) {
			if err := s.attempts.MarkCompensated(ctx, attempt.AttemptID); err != nil {
				s.logger.Error("mark resumed attempt compensated",
					zap.String("attemptId", attempt.AttemptID.String()), zap.Error(err))
				continue
			}
			resumed++
		}
	}
	return resumed, nil
}

// stepsBefore returns the forward steps strictly before the cursor.
func stepsBefore(cursor string) []string {
	for i, step := range sagaSteps {
		if step == cursor {
			return sagaSteps[:i]
		}
	}
	return nil
}
