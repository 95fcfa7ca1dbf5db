package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/authward/authward/internal/business"
	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/logger"
)

func Cmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the session store schema migrations",
		Long:  "Migrates the postgres session store schema to the latest version.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := logger.InitAsDefault(cfg.Logger, cfg.Application); err != nil {
				return fmt.Errorf("initialising the logger: %w", err)
			}

			if cfg.Store.Kind != config.StoreKindPostgres {
				return fmt.Errorf("store kind %q has no schema to migrate", cfg.Store.Kind)
			}

			if err := business.MigrateMain(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("migrating the database: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	return cmd
}
