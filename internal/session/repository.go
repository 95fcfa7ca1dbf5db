package session

import "context"

// Repository is the external session store. Implementations only
// persist; they never retry, so an infrastructure failure propagates to
// the caller, which fails the request closed.
type Repository interface {
	// Load returns the session for the given id or serviceerr.ErrNotFound.
	Load(ctx context.Context, sessionID string) (Session, error)

	// Store upserts, replacing any prior session for the same id wholesale.
	Store(ctx context.Context, session Session) error

	// Invalidate removes the session. Removing an absent session is not
	// an error.
	Invalidate(ctx context.Context, sessionID string) error
}
