// Package noncestore keeps the per-login PendingAuth entries alive
// between the redirect to the IdP and the callback. Entries are keyed by
// the state token and consumed exactly once.
package noncestore

import (
	"sync"
	"time"

	"github.com/authward/authward/internal/pkce"
	"github.com/authward/authward/internal/serviceerr"
)

// PendingAuth is the ephemeral record of one login attempt.
type PendingAuth struct {
	State       string    // state token, the lookup key
	Nonce       string    // expected value of the ID token nonce claim
	Verifier    string    // PKCE code verifier for the token exchange
	Destination string    // where to send the browser after login
	Expiry      time.Time // entries past this point are treated as absent
}

// Store is a process-wide, internally synchronized PendingAuth table.
// It is shared by every in-flight request; inject it explicitly rather
// than reaching for a package-level instance.
type Store struct {
	mu      sync.Mutex
	entries map[string]PendingAuth

	source pkce.Source
	ttl    time.Duration
	now    func() time.Time
}

func New(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]PendingAuth),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create mints a fresh state, nonce and PKCE verifier for a login
// attempt bound for destination and records the entry under the state.
func (s *Store) Create(destination string) (PendingAuth, error) {
	entry := PendingAuth{
		State:       s.source.State(),
		Nonce:       s.source.Nonce(),
		Verifier:    s.source.PKCE().Verifier,
		Destination: destination,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Expiry = s.now().Add(s.ttl)

	// 64 characters from a 63 symbol alphabet make a collision
	// effectively impossible; treat one as corruption rather than retry.
	if _, ok := s.entries[entry.State]; ok {
		return PendingAuth{}, serviceerr.ErrConflict
	}

	s.entries[entry.State] = entry

	return entry, nil
}

// Consume atomically looks up and removes the entry for state. Unknown,
// expired and already consumed states are indistinguishable to the
// caller: all return ErrInvalidState. This single check-and-delete is
// what makes every state usable exactly once, including under
// concurrent callbacks racing for the same state.
func (s *Store) Consume(state string) (PendingAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return PendingAuth{}, serviceerr.ErrInvalidState
	}

	delete(s.entries, state)

	if s.now().After(entry.Expiry) {
		return PendingAuth{}, serviceerr.ErrInvalidState
	}

	return entry, nil
}

// Len reports the number of pending entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Sweep drops expired entries and reports how many were removed.
// Best-effort housekeeping only: Consume treats expired entries as
// absent whether or not a sweep ever ran.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for state, entry := range s.entries {
		if now.After(entry.Expiry) {
			delete(s.entries, state)
			removed++
		}
	}

	return removed
}
