// Package command contains the CLI command constructors.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/academy/internal/config"
	"github.com/Skotchmaster/academy/internal/logging"
)

type configKey struct{}

// RootCommand instantiates the root command, with all sub-commands bound.
func RootCommand() *cobra.Command {
	envFile := ".env"
	cmd := &cobra.Command{
		Use:          "academy [command] [flags]",
		Short:        "Accounts and sessions for the academy CMS",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv(envFile)
			cfg := config.Load()

			logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
			slog.SetDefault(logger)

			ctx := logging.IntoContext(cmd.Context(), logger)
			cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", envFile, "optional .env file to load")

	cmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		userCommand(),
		workerCommand(),
	)
	return cmd
}

func configFrom(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(config.Config)
	if !ok {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
