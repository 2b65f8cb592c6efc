package claimscmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loopcollab/loop-saas/domains/users/be/service"
	platformauth "github.com/loopcollab/loop-saas/platform/go/auth"
	"github.com/loopcollab/loop-saas/platform/go/authz"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	"github.com/loopcollab/loop-saas/platform/go/gcp"
	"github.com/loopcollab/loop-saas/platform/go/identity"
	platformlogging "github.com/loopcollab/loop-saas/platform/go/logging"
	"github.com/loopcollab/loop-saas/platform/go/requesttrace"
)

// Command groups custom-claim utilities.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Custom claim utilities (bulk repair)",
	}

	cmd.AddCommand(repairCommand())
	return cmd
}

func repairCommand() *cobra.Command {
	var (
		databaseURL     string
		credentialsFile string
	)

	c := &cobra.Command{
		Use:   "repair",
		Short: "Resync every principal's custom claims from the stored profiles",
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
				userStore,
				roleStore,
				businessUnitStore,
				tenantStore,
				opsLogStore,
				directory,
				gate,
				logger,
			)

			// The CLI runs with operator authority; the service still records
			// the system actor in the operations log.
			ctx = platformauth.WithUser(ctx, &platformauth.Credentials{
				ID:            "ops-cli",
				PlatformAdmin: true,
			})

			repaired, err := svc.FixAllUserClaims(ctx, requesttrace.System(uuid.NewString()))
			if err != nil {
				return fmt.Errorf("repair claims: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Claim repair complete. Principals updated: %d\n", repaired)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&credentialsFile, "credentials-file", "", "Firebase service account file (omit for ADC)")

	_ = c.MarkFlagRequired("database-url")

	return c
}
