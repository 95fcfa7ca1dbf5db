// Package sessionmemory is the default, single-process session store.
package sessionmemory

import (
	"context"
	"sync"
	"time"

	"github.com/authward/authward/internal/serviceerr"
	"github.com/authward/authward/internal/session"
)

type Repository struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

var _ session.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		sessions: make(map[string]session.Session),
	}
}

func (r *Repository) Load(_ context.Context, sessionID string) (session.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()

	if !ok || time.Now().After(s.Expiry) {
		return session.Session{}, serviceerr.ErrNotFound
	}

	return s, nil
}

func (r *Repository) Store(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s

	return nil
}

func (r *Repository) Invalidate(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)

	return nil
}

// Sweep drops expired sessions. Load already treats them as absent;
// sweeping just frees the memory.
func (r *Repository) Sweep(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	var removed int64

	for id, s := range r.sessions {
		if now.After(s.Expiry) {
			delete(r.sessions, id)
			removed++
		}
	}

	return removed, nil
}
