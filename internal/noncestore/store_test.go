package noncestore_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authward/authward/internal/noncestore"
	"github.com/authward/authward/internal/serviceerr"
)

func TestStore_CreateConsume(t *testing.T) {
	store := noncestore.New(time.Minute)

	entry, err := store.Create("https://app.example.com/reports?year=2026")
	require.NoError(t, err)

	assert.NotEmpty(t, entry.State)
	assert.NotEmpty(t, entry.Nonce)
	assert.NotEmpty(t, entry.Verifier)
	assert.NotEqual(t, entry.State, entry.Nonce)

	got, err := store.Consume(entry.State)
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	// second consume of the same state must look like an unknown state
	_, err = store.Consume(entry.State)
	assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
}

func TestStore_ConsumeUnknownState(t *testing.T) {
	store := noncestore.New(time.Minute)

	_, err := store.Consume("never-issued")
	assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
}

func TestStore_UniqueStates(t *testing.T) {
	store := noncestore.New(time.Minute)

	seen := make(map[string]bool)
	for range 100 {
		entry, err := store.Create("/")
		require.NoError(t, err)
		assert.False(t, seen[entry.State], "duplicate state issued")
		seen[entry.State] = true
	}

	assert.Equal(t, 100, store.Len())
}

func TestStore_ExpiredEntryIsAbsent(t *testing.T) {
	store := noncestore.New(time.Minute)

	entry, err := store.Create("/")
	require.NoError(t, err)

	// move the clock past the entry's expiry; no sweep has run
	store.SetNow(func() time.Time { return time.Now().Add(2 * time.Minute) })

	_, err = store.Consume(entry.State)
	assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
}

func TestStore_Sweep(t *testing.T) {
	store := noncestore.New(time.Minute)

	expired, err := store.Create("/old")
	require.NoError(t, err)

	store.SetNow(func() time.Time { return time.Now().Add(2 * time.Minute) })

	fresh, err := store.Create("/new")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	_, err = store.Consume(expired.State)
	assert.ErrorIs(t, err, serviceerr.ErrInvalidState)

	_, err = store.Consume(fresh.State)
	assert.NoError(t, err)
}

func TestStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	store := noncestore.New(time.Minute)

	entry, err := store.Create("/")
	require.NoError(t, err)

	const goroutines = 32

	var wg sync.WaitGroup
	results := make(chan error, goroutines)
	start := make(chan struct{})

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.Consume(entry.State)
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
		}
	}

	assert.Equal(t, 1, won, "exactly one goroutine may consume a state")
}
