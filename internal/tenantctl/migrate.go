package tenantctl

import (
	"github.com/spf13/cobra"

	"processhub_backend/platform/db"
)

func newMigrateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := db.RunMigrations(cmd.Context(), pool, e.log.Logger); err != nil {
				return err
			}
			version, err := db.MigrationStatus(cmd.Context(), pool)
			if err != nil {
				return err
			}
			e.printf("schema at version %d\n", version)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			version, err := db.MigrationStatus(cmd.Context(), pool)
			if err != nil {
				return err
			}
			e.printf("schema at version %d\n", version)
			return nil
		},
	})
	return cmd
}
