package rolescmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loopcollab/loop-saas/domains/roles/be/service"
	"github.com/loopcollab/loop-saas/platform/go/docstore"
	platformlogging "github.com/loopcollab/loop-saas/platform/go/logging"
)

// Command groups system-role permission utilities.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "System role utilities (permission migration)",
	}

	cmd.AddCommand(migrateCommand())
	return cmd
}

func migrateCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
	)

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite drifted system-role permissions to the current templates",
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

			roleStore, err := docstore.NewRoleStore(pool)
			if err != nil {
				return fmt.Errorf("init role store: %w", err)
			}

			engine := service.NewEngine(roleStore, &service.MigrationState{}, logger)

			var updated int
			if tenantID != "" {
				id, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid --tenant-id: %w", err)
				}
				updated, err = engine.MigrateTenant(ctx, id)
				if err != nil {
					return fmt.Errorf("migrate tenant roles: %w", err)
				}
			} else {
				updated, err = engine.MigrateAll(ctx)
				if err != nil {
					return fmt.Errorf("migrate roles: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Role migration complete. Roles updated: %d\n", updated)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Restrict migration to one tenant (optional)")

	_ = c.MarkFlagRequired("database-url")

	return c
}
