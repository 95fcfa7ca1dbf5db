package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/cmd/authward/migrate"
	"github.com/authward/authward/cmd/authward/serve"
)

// BuildInfo will be set by the build system
var BuildInfo = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Authward version",
	Run: func(cmd *cobra.Command, _ []string) {
		slog.InfoContext(cmd.Context(), BuildInfo)
	},
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authward",
		Short: "Authward",
		Long:  "Authward, an OIDC relying party guarding an upstream application.",
	}

	cmd.AddCommand(
		versionCmd,
		serve.Cmd(),
		migrate.Cmd(),
	)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelOnSignal()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slogctx.Error(ctx, "failed to start the application", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	return nil
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
