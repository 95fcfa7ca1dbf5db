package server

import (
	"encoding/json"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/authn"
)

// WhoamiHandler echoes the verified identity of the caller. It doubles
// as the built-in upstream when no application is configured behind the
// proxy, and as a smoke test that the middleware attached the identity.
func WhoamiHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, ok := authn.IdentityFromContext(ctx)
		if !ok {
			// reachable only via a skip-listed path
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		w.Header().Set("Content-Type", "application/json")

		err := json.NewEncoder(w).Encode(map[string]any{
			"subject": identity.Subject,
			"issuer":  identity.Issuer,
			"expiry":  identity.Expiry,
			"claims":  identity.Claims,
		})
		if err != nil {
			slogctx.Error(ctx, "Failed to encode whoami response", "error", err)
		}
	})
}
