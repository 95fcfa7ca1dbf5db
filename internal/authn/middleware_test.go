package authn_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authward/authward/internal/authn"
	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/noncestore"
	"github.com/authward/authward/internal/oidc"
	"github.com/authward/authward/internal/oidc/oidctest"
	"github.com/authward/authward/internal/session"
	sessionmock "github.com/authward/authward/internal/session/mock"
)

const (
	clientID     = "my-client-id"
	cookieName   = "authward-session"
	callbackPath = "/oauth2/callback"
)

type fixture struct {
	idp      *oidctest.Server
	sessions *sessionmock.Repository
	nonces   *noncestore.Store
	handler  http.Handler
}

func newFixture(t *testing.T, opts ...sessionmock.RepositoryOption) *fixture {
	t.Helper()

	idp := oidctest.New(t, clientID)

	client, err := oidc.NewProvider(config.Provider{
		IssuerURL:         idp.URL(),
		ClientID:          clientID,
		RedirectURL:       "http://app.example.com" + callbackPath,
		Scopes:            []string{"openid"},
		RequestTimeout:    5 * time.Second,
		DiscoveryCacheTTL: time.Minute,
	})
	require.NoError(t, err)

	sessions := sessionmock.NewInMemRepository(opts...)
	nonces := noncestore.New(10 * time.Minute)
	manager := session.NewManager(client, sessions, nonces, 12*time.Hour, "/")

	authCfg := config.Auth{
		LoginPath:   "/login",
		LogoutPath:  "/logout",
		LandingPath: "/",
		SkipPaths:   []string{"/healthz"},
		SessionCookie: config.CookieTemplate{
			Name:     cookieName,
			Path:     "/",
			HTTPOnly: true,
			SameSite: config.CookieSameSiteLax,
		},
	}

	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authn.IdentityFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))

			return
		}

		_, _ = w.Write([]byte("hello " + identity.Subject))
	})

	return &fixture{
		idp:      idp,
		sessions: sessions,
		nonces:   nonces,
		handler:  authn.NewMiddleware(authCfg, callbackPath, manager).Wrap(downstream),
	}
}

func (f *fixture) do(t *testing.T, method, target string, cookie string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

// challenge requests target without a session and returns the state and
// nonce from the resulting IdP redirect.
func (f *fixture) challenge(t *testing.T, target string) (state, nonce string) {
	t.Helper()

	rec := f.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/oauth2/authorize", location.Path)

	q := location.Query()
	require.NotEmpty(t, q.Get("state"))
	require.NotEmpty(t, q.Get("nonce"))

	return q.Get("state"), q.Get("nonce")
}

// login runs the whole round-trip for target and returns the session
// cookie value plus the post-login redirect location.
func (f *fixture) login(t *testing.T, target string) (sessionID, destination string) {
	t.Helper()

	state, nonce := f.challenge(t, target)
	f.idp.SetNonce(nonce)

	rec := f.do(t, http.MethodGet, callbackPath+"?state="+url.QueryEscape(state)+"&code=the-code", "")
	require.Equal(t, http.StatusFound, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, cookieName, cookies[0].Name)

	return cookies[0].Value, rec.Header().Get("Location")
}

func TestMiddleware_LoginRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.idp.SetSubject("user-42")

	sessionID, destination := f.login(t, "/reports?year=2026")
	assert.Equal(t, "/reports?year=2026", destination, "login must land back where the user was headed")

	rec := f.do(t, http.MethodGet, "/reports?year=2026", sessionID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello user-42", rec.Body.String())
}

func TestMiddleware_ValidSessionIsNotRedirected(t *testing.T) {
	f := newFixture(t)

	sessionID, _ := f.login(t, "/")

	for range 3 {
		rec := f.do(t, http.MethodGet, "/anything", sessionID)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
	}

	assert.Equal(t, 1, f.idp.ExchangeCount())
}

func TestMiddleware_NonGETWithoutSession(t *testing.T) {
	f := newFixture(t)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := f.do(t, method, "/api/things", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, method)
		assert.Empty(t, rec.Header().Get("Location"), method)
	}

	assert.Equal(t, 0, f.nonces.Len(), "rejection must not open a login attempt")
	assert.Equal(t, 0, f.idp.ExchangeCount())
}

func TestMiddleware_SkipPaths(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{"/healthz", "/healthz/ready"} {
		rec := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "anonymous", rec.Body.String(), target)
	}

	// prefix matching must not leak onto sibling paths
	rec := f.do(t, http.MethodGet, "/healthz-internal", "")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestMiddleware_StaleCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/private", "no-such-session")
	assert.Equal(t, http.StatusFound, rec.Code, "a stale cookie starts a fresh login")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge, "the stale cookie must be dropped")
}

func TestMiddleware_StoreUnavailableFailsClosed(t *testing.T) {
	f := newFixture(t, sessionmock.WithLoadError(errors.New("connection refused")))

	rec := f.do(t, http.MethodGet, "/private", "some-session")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestMiddleware_LoginPath(t *testing.T) {
	f := newFixture(t)

	_, destination := f.login(t, "/login?rd=%2Fafter%2Flogin")
	assert.Equal(t, "/after/login", destination)
}

func TestMiddleware_LoginPathRejectsAbsoluteDestination(t *testing.T) {
	f := newFixture(t)

	for _, rd := range []string{"https://evil.example.com/", "//evil.example.com/", "evil"} {
		_, destination := f.login(t, "/login?rd="+url.QueryEscape(rd))
		assert.Equal(t, "/", destination, rd)
	}
}

func TestMiddleware_Logout(t *testing.T) {
	f := newFixture(t)

	sessionID, _ := f.login(t, "/")
	require.Equal(t, 1, f.sessions.Len())

	rec := f.do(t, http.MethodGet, "/logout", sessionID)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 0, f.sessions.Len())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	// the old session id is gone for good
	rec = f.do(t, http.MethodGet, "/private", sessionID)
	assert.Equal(t, http.StatusFound, rec.Code)
}
