package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fscore/internal/app"
	"fscore/internal/store"
)

func migrateCmd() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the SQLite session schema up or down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wire.Config.Store
			if cfg.Backend != app.BackendSQLite {
				return fmt.Errorf("migrate only applies to the %s backend", app.BackendSQLite)
			}
			before, err := store.MigrateSQLite(cfg.Path, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d -> %d\n", before, target)
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "to", store.LatestSchemaVersion, "target schema version")
	return cmd
}
