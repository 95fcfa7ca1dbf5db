// Package sessionmock provides an option-configurable in-memory
// Repository for tests that need to inject store failures.
package sessionmock

import (
	"context"
	"sync"

	"github.com/authward/authward/internal/serviceerr"
	"github.com/authward/authward/internal/session"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu       sync.Mutex
	sessions map[string]session.Session

	loadErr, storeErr, invalidateErr error
}

func WithSession(sess session.Session) RepositoryOption {
	return func(r *Repository) { r.sessions[sess.ID] = sess }
}

func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) { r.loadErr = err }
}

func WithStoreError(err error) RepositoryOption {
	return func(r *Repository) { r.storeErr = err }
}

func WithInvalidateError(err error) RepositoryOption {
	return func(r *Repository) { r.invalidateErr = err }
}

var _ session.Repository = (*Repository)(nil)

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		sessions: make(map[string]session.Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Repository) Load(_ context.Context, sessionID string) (session.Session, error) {
	if r.loadErr != nil {
		return session.Session{}, r.loadErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		return s, nil
	}

	return session.Session{}, serviceerr.ErrNotFound
}

func (r *Repository) Store(_ context.Context, s session.Session) error {
	if r.storeErr != nil {
		return r.storeErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s

	return nil
}

func (r *Repository) Invalidate(_ context.Context, sessionID string) error {
	if r.invalidateErr != nil {
		return r.invalidateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)

	return nil
}

// Len reports the number of stored sessions.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Get returns a stored session without the Repository error injection.
func (r *Repository) Get(sessionID string) (session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]

	return s, ok
}
