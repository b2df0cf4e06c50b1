package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pik-ry/laskutin/internal/platform/database"
	"github.com/pik-ry/laskutin/internal/platform/migrations"
)

func getCmdMigrate(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if gs.cfg.Database.DSN == "" {
				return fmt.Errorf("database.dsn is required for migrate")
			}
			db, err := database.Open(cmd.Context(), gs.cfg.Database.DSN, database.Options{
				MaxOpenConns:    gs.cfg.Database.MaxOpenConns,
				MaxIdleConns:    gs.cfg.Database.MaxIdleConns,
				ConnMaxLifetime: gs.cfg.Database.ConnMaxLifetime.Std(),
			})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Apply(cmd.Context(), db); err != nil {
				return err
			}
			successLine(gs.stdout, "database schema is up to date")
			return nil
		},
	}
}
