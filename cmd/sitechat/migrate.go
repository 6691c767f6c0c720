package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/sitechat-backend/internal/app"
	"github.com/yungbote/sitechat-backend/internal/data/db"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema and policy migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(pg *db.PostgresService, log *logger.Logger) error {
			if err := app.Migrate(pg.DB(), log); err != nil {
				return err
			}
			v, dirty, err := db.PolicyVersion(pg.DB())
			if err != nil {
				return err
			}
			log.Info("migrations applied", "policy_version", v, "dirty", dirty)
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back policy migrations (tables are left in place)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(pg *db.PostgresService, log *logger.Logger) error {
			if err := db.RollbackPolicies(pg.DB(), rollbackSteps); err != nil {
				return err
			}
			log.Info("policy migrations rolled back", "steps", rollbackSteps)
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied policy migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(pg *db.PostgresService, log *logger.Logger) error {
			v, dirty, err := db.PolicyVersion(pg.DB())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d dirty=%t\n", v, dirty)
			return nil
		})
	},
}

func withDB(fn func(pg *db.PostgresService, log *logger.Logger) error) error {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	pg, err := db.NewPostgresService(log)
	if err != nil {
		return err
	}
	defer pg.Close()
	return fn(pg, log)
}

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back (0 for all)")
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}
