package command

import (
	"github.com/spf13/cobra"

	"github.com/Skotchmaster/academy/internal/logging"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and create the builtin roles",
		Long: "Runs the schema migration, creates the builtin roles and, when\n" +
			"BOOTSTRAP_ADMIN_PASSWORD is set, the bootstrap admin account.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, &runErr)

			logging.FromContext(cmd.Context()).Info("migration complete")
			return nil
		},
	}
}

func closeApp(a *app, runErr *error) {
	if err := a.Close(); err != nil && *runErr == nil {
		*runErr = err
	}
}
