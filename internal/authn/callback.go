package authn

import (
	"fmt"
	"net/http"

	"github.com/authward/authward/internal/serviceerr"
)

// serveCallback handles the redirect back from the identity provider.
// It always terminates the request: either with a redirect to the
// destination recorded at login time, or with a rejection. It never
// falls through to the protected application.
func (m *Middleware) serveCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if idpErr := q.Get("error"); idpErr != "" {
		m.loginFailure.Add(ctx, 1)
		m.reject(w, r, fmt.Errorf("%w: %s: %s", serviceerr.ErrIdP, idpErr, q.Get("error_description")))

		return
	}

	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		m.loginFailure.Add(ctx, 1)
		m.reject(w, r, serviceerr.ErrMalformedCallback)

		return
	}

	result, err := m.manager.FinishAuth(ctx, state, code)
	if err != nil {
		m.loginFailure.Add(ctx, 1)
		m.reject(w, r, err)

		return
	}

	m.loginSuccess.Add(ctx, 1)
	http.SetCookie(w, m.cookie.ToCookie(result.SessionID))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, m.safeDestination(result.Destination), http.StatusFound)
}
