package authn

import (
	"context"

	"github.com/authward/authward/internal/session"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity attaches the verified identity to the context for
// downstream handlers to access.
func ContextWithIdentity(ctx context.Context, identity session.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the identity the middleware attached to
// the request. The second return value is false on requests that never
// passed through it, such as skip-listed paths.
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(session.Identity)

	return identity, ok
}
