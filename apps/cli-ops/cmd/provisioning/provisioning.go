package provisioningcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loopcollab/loop-saas/domains/tenants/be/service"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/gcp"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	platformlogging "github.com/loopcollab/loop-saas/platform/go/logging"
)

// Command groups tenant provisioning recovery utilities.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provisioning",
		Short: "Tenant provisioning utilities (failed-attempt recovery)",
	}

	cmd.AddCommand(resumeCommand())
	return cmd
}

func resumeCommand() *cobra.Command {
	var (
		databaseURL     string
		credentialsFile string
	)

	c := &cobra.Command{
		Use:   "resume",
		Short: "Compensate provisioning attempts that failed mid-flight",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := platformlogging.NewLogger(platformlogging.Config{
				Component:   "ops-cli",
				Development: true,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			pool, err := docstore.NewPool(ctx, docstore.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer docstore.ClosePool(pool)

			tenantStore, err := docstore.NewTenantStore(pool)
			if err != nil {
				return fmt.Errorf("init tenant store: %w", err)
			}
			roleStore, err := docstore.NewRoleStore(pool)
			if err != nil {
				return fmt.Errorf("init role store: %w", err)
			}
			businessUnitStore, err := docstore.NewBusinessUnitStore(pool)
			if err != nil {
				return fmt.Errorf("init business unit store: %w", err)
			}
			userStore, err := docstore.NewUserStore(pool)
			if err != nil {
				return fmt.Errorf("init user store: %w", err)
			}
			opsLogStore, err := docstore.NewOperationsLogStore(pool)
			if err != nil {
				return fmt.Errorf("init operations log store: %w", err)
			}
			attemptStore, err := docstore.NewAttemptStore(pool)
			if err != nil {
				return fmt.Errorf("init attempt store: %w", err)
			}

			_, fbAuth, err := gcp.InitFirebaseAuth(ctx, credentialsFile)
			if err != nil {
				return fmt.Errorf("init firebase auth: %w", err)
			}
			directory := identity.NewFirebaseDirectory(fbAuth)

			gate := authz.NewGate(userStore, func(ctx context.Context, creds *platformauth.Credentials) error {
				_, err := directory.GetPrincipal(ctx, creds.ID)
				return err
			}, logger)

			svc := service.New(
				tenantStore,
				roleStore,
				businessUnitStore,
				userStore,
				opsLogStore,
				attemptStore,
				directory,
				gate,
				logger,
				service.Options{},
			)

			resumed, err := svc.ResumeFailedAttempts(ctx)
			if err != nil {
				return fmt.Errorf("resume failed attempts: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recovery complete. Attempts compensated: %d\n", resumed)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&credentialsFile, "credentials-file", "", "Firebase service account file (omit for ADC)")

	_ = c.MarkFlagRequired("database-url")

	return c
}
