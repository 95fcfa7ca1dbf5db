package business

import (
	"context"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/noncestore"
	"github.com/authward/authward/internal/session"
)

// sweeper is implemented by session stores that need an explicit purge
// of expired entries (memory, postgres). Stores with native expiry
// (valkey) don't.
type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// runSweeper periodically purges expired login attempts and, when the
// store supports it, expired sessions. The sweep is best effort:
// lookups already treat expired entries as absent.
func runSweeper(ctx context.Context, cfg *config.Config, nonces *noncestore.Store, sessions session.Repository) {
	c := time.Tick(cfg.Auth.SweepInterval)

	for {
		select {
		case <-c:
		case <-ctx.Done():
			return
		}

		swept := int64(nonces.Sweep())

		if s, ok := sessions.(sweeper); ok {
			n, err := s.Sweep(ctx)
			if err != nil {
				slogctx.Warn(ctx, "Session sweep failed", "error", err)
			}

			swept += n
		}

		if swept > 0 {
			slogctx.Debug(ctx, "Swept expired entries", "count", swept)
		}
	}
}
