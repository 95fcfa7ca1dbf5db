package business

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/noncestore"
	"github.com/authward/authward/internal/session"
	sessionmemory "github.com/authward/authward/internal/session/memory"
	sessionsql "github.com/authward/authward/internal/session/sql"
)

func TestSweeperIsImplementedByPurgingStores(t *testing.T) {
	_, ok := any(sessionmemory.NewRepository()).(sweeper)
	assert.True(t, ok, "memory repository must be sweepable")

	_, ok = any(sessionsql.NewRepository(nil)).(sweeper)
	assert.True(t, ok, "sql repository must be sweepable")
}

func TestRunSweeper_PurgesExpiredSessions(t *testing.T) {
	sessions := sessionmemory.NewRepository()
	require.NoError(t, sessions.Store(t.Context(), session.Session{
		ID:     "dead",
		Expiry: time.Now().Add(-time.Minute),
	}))

	nonces := noncestore.New(time.Minute)

	cfg := &config.Config{}
	cfg.Auth.SweepInterval = time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		defer close(done)
		runSweeper(ctx, cfg, nonces, sessions)
	}()

	assert.Eventually(t, func() bool {
		n, err := sessions.Sweep(t.Context())
		return err == nil && n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
