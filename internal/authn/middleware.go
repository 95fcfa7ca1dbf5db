// Package authn is the request interceptor. It decides per request
// whether to pass through with a verified identity, redirect the
// browser to the identity provider, or reject.
package authn

import (
	"errors"
	"net/http"
	"strings"

	slogctx "github.com/veqryn/slog-context"
	"go.opentelemetry.io/otel/metric"

	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/serviceerr"
	"github.com/authward/authward/internal/session"
)

// Middleware guards every route except its own control paths (login,
// logout, callback) and the configured skip list.
type Middleware struct {
	manager *session.Manager
	cookie  config.CookieTemplate

	loginPath    string
	logoutPath   string
	landingPath  string
	callbackPath string
	skipPaths    []string

	loginSuccess metric.Int64Counter
	loginFailure metric.Int64Counter
}

func NewMiddleware(cfg config.Auth, callbackPath string, manager *session.Manager) *Middleware {
	loginSuccess, loginFailure := newLoginMeters()

	return &Middleware{
		manager:      manager,
		cookie:       cfg.SessionCookie,
		loginPath:    cfg.LoginPath,
		logoutPath:   cfg.LogoutPath,
		landingPath:  cfg.LandingPath,
		callbackPath: callbackPath,
		skipPaths:    cfg.SkipPaths,
		loginSuccess: loginSuccess,
		loginFailure: loginFailure,
	}
}

// Wrap returns the middleware chained in front of next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)

			return
		}

		switch r.URL.Path {
		case m.callbackPath:
			m.serveCallback(w, r)
		case m.loginPath:
			m.serveLogin(w, r)
		case m.logoutPath:
			m.serveLogout(w, r)
		default:
			m.authenticate(w, r, next)
		}
	})
}

// authenticate resolves the session cookie into an identity and passes
// the request on, or challenges the browser to log in.
func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request, next http.Handler) {
	cookie, err := r.Cookie(m.cookie.Name)
	if err != nil {
		m.challenge(w, r)

		return
	}

	identity, err := m.manager.Resolve(r.Context(), cookie.Value)
	switch {
	case err == nil:
		ctx := ContextWithIdentity(r.Context(), identity)
		ctx = slogctx.With(ctx, "subject", identity.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	case errors.Is(err, serviceerr.ErrNotFound):
		// stale cookie: drop it and start over
		http.SetCookie(w, m.cookie.ToExpiredCookie())
		m.challenge(w, r)
	default:
		// store trouble fails closed, never open
		m.reject(w, r, err)
	}
}

// challenge sends the browser to the identity provider. Only GET
// requests are redirected: replaying a non-GET request after the
// round-trip would be unsafe, so those are rejected outright.
func (m *Middleware) challenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		slogctx.Debug(r.Context(), "Rejecting unauthenticated non-GET request", "method", r.Method, "path", r.URL.Path)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return
	}

	m.redirectToIdP(w, r, r.URL.RequestURI())
}

func (m *Middleware) serveLogin(w http.ResponseWriter, r *http.Request) {
	m.redirectToIdP(w, r, m.safeDestination(r.URL.Query().Get("rd")))
}

func (m *Middleware) serveLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(m.cookie.Name); err == nil {
		if err := m.manager.Logout(r.Context(), cookie.Value); err != nil {
			m.reject(w, r, err)

			return
		}
	}

	http.SetCookie(w, m.cookie.ToExpiredCookie())
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, m.landingPath, http.StatusFound)
}

func (m *Middleware) redirectToIdP(w http.ResponseWriter, r *http.Request, destination string) {
	authURL, err := m.manager.BeginAuth(r.Context(), destination)
	if err != nil {
		m.reject(w, r, err)

		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// reject logs the concrete failure and answers with a generic status.
// Which validation step failed stays in the logs: the response must not
// act as an oracle.
func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnauthorized

	var serr *serviceerr.Error
	if errors.As(err, &serr) {
		status = serr.HTTPStatus()
	}

	slogctx.Warn(r.Context(), "Rejecting request", "path", r.URL.Path, "status", status, "error", err)
	http.Error(w, http.StatusText(status), status)
}

func (m *Middleware) skipped(path string) bool {
	for _, skip := range m.skipPaths {
		if path == skip || strings.HasPrefix(path, skip+"/") {
			return true
		}
	}

	return false
}

// safeDestination keeps post-login redirects on this host. Anything
// that is not a plain relative path falls back to the landing path.
func (m *Middleware) safeDestination(destination string) string {
	if destination == "" || destination[0] != '/' || strings.HasPrefix(destination, "//") {
		return m.landingPath
	}

	return destination
}
