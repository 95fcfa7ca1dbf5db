// Package logger initialises the process-wide slog default from the
// logger configuration.
package logger

import (
	"fmt"
	"log/slog"
	"os"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/config"
)

// InitAsDefault builds the configured handler, wraps it so context
// attributes travel with every record and installs it as the default
// logger.
func InitAsDefault(cfg config.Logger, app config.Application) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	handler = handler.WithAttrs([]slog.Attr{slog.String("application", app.Name)})

	slog.SetDefault(slog.New(slogctx.NewHandler(handler, nil)))

	return nil
}
