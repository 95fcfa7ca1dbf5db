package sessionmemory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authward/authward/internal/serviceerr"
	"github.com/authward/authward/internal/session"
	sessionmemory "github.com/authward/authward/internal/session/memory"
)

func TestRepository_RoundTrip(t *testing.T) {
	repo := sessionmemory.NewRepository()

	sess := session.Session{
		ID: "sid-1",
		Identity: session.Identity{
			Subject: "user-42",
			Issuer:  "https://idp.example.com",
			Expiry:  time.Now().Add(time.Hour),
		},
		CreatedAt: time.Now(),
		Expiry:    time.Now().Add(12 * time.Hour),
	}

	require.NoError(t, repo.Store(t.Context(), sess))

	loaded, err := repo.Load(t.Context(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, sess, loaded)

	require.NoError(t, repo.Invalidate(t.Context(), "sid-1"))

	_, err = repo.Load(t.Context(), "sid-1")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_LoadUnknown(t *testing.T) {
	repo := sessionmemory.NewRepository()

	_, err := repo.Load(t.Context(), "missing")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_ExpiredSessionIsAbsent(t *testing.T) {
	repo := sessionmemory.NewRepository()

	require.NoError(t, repo.Store(t.Context(), session.Session{
		ID:     "sid-1",
		Expiry: time.Now().Add(-time.Minute),
	}))

	_, err := repo.Load(t.Context(), "sid-1")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestRepository_Sweep(t *testing.T) {
	repo := sessionmemory.NewRepository()

	require.NoError(t, repo.Store(t.Context(), session.Session{ID: "dead", Expiry: time.Now().Add(-time.Minute)}))
	require.NoError(t, repo.Store(t.Context(), session.Session{ID: "live", Expiry: time.Now().Add(time.Hour)}))

	swept, err := repo.Sweep(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	_, err = repo.Load(t.Context(), "live")
	assert.NoError(t, err)
}
