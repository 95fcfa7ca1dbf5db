package serve

import (
	"context"
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/business"
	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/logger"
)

func run(ctx context.Context, cfg *config.Config) error {
	err := logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}

	slogctx.Info(ctx, "Starting the application", "name", cfg.Application.Name, "address", cfg.HTTP.Address)

	err = business.Main(ctx, cfg)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to start the main business application")
	}

	return nil
}

func Cmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Authward proxy",
		Long:  "Serves the protected upstream behind the OIDC authorization code flow.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := run(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("running the server: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	return cmd
}
