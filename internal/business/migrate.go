package business

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose

	slogctx "github.com/veqryn/slog-context"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/authward/authward/internal/config"
	migrations "github.com/authward/authward/sql"
)

// MigrateMain applies the session store schema migrations. Only the
// postgres backend has a schema to migrate.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	const dialect = "pgx"

	connStr, err := config.MakeConnStr(cfg.Store.Database)
	if err != nil {
		return fmt.Errorf("making connection string from config: %w", err)
	}

	db, err := otelsql.Open(dialect, connStr, otelsql.WithAttributes(semconv.DBSystemNamePostgreSQL))
	if err != nil {
		return oops.In("migrate").Wrapf(err, "opening DB connection")
	}
	defer db.Close()

	reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemNamePostgreSQL))
	if err != nil {
		return fmt.Errorf("registering db stats metrics: %w", err)
	}

	defer func() {
		if err := reg.Unregister(); err != nil {
			slogctx.Error(ctx, "Failed to unregister db stats metrics", "error", err)
		}
	}()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	slogctx.Info(ctx, "Session store schema is up to date")

	return nil
}
