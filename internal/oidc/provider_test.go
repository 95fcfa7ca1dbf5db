package oidc_test

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/oidc"
	"github.com/authward/authward/internal/oidc/oidctest"
	"github.com/authward/authward/internal/serviceerr"
)

const testClientID = "my-client-id"

func newProvider(t *testing.T, idp *oidctest.Server) *oidc.Provider {
	t.Helper()

	provider, err := oidc.NewProvider(config.Provider{
		IssuerURL:         idp.URL(),
		ClientID:          testClientID,
		ClientSecret:      config.SourceRef{Value: "shhh"},
		RedirectURL:       "https://app.example.com/oauth2/callback",
		Scopes:            []string{"openid", "profile"},
		RequestTimeout:    5 * time.Second,
		DiscoveryCacheTTL: time.Minute,
	})
	require.NoError(t, err)

	return provider
}

func TestProvider_Discover(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	provider := newProvider(t, idp)

	conf, err := provider.Discover(t.Context())
	require.NoError(t, err)

	assert.Equal(t, idp.URL(), conf.Issuer)
	assert.Equal(t, idp.URL()+"/oauth2/authorize", conf.AuthorizationEndpoint)
	assert.Equal(t, idp.URL()+"/oauth2/token", conf.TokenEndpoint)
	assert.NotEmpty(t, conf.JwksURI)
}

func TestProvider_DiscoverUnreachable(t *testing.T) {
	dead := httptest.NewServer(nil)
	dead.Close()

	provider, err := oidc.NewProvider(config.Provider{
		IssuerURL:         dead.URL,
		ClientID:          testClientID,
		RedirectURL:       "https://app.example.com/cb",
		RequestTimeout:    time.Second,
		DiscoveryCacheTTL: time.Minute,
	})
	require.NoError(t, err)

	_, err = provider.Discover(t.Context())
	assert.ErrorIs(t, err, serviceerr.ErrIdPUnreachable)
}

func TestProvider_AuthURL(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	provider := newProvider(t, idp)

	rawURL, err := provider.AuthURL(t.Context(), "state-1", "nonce-1", "challenge-1")
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	assert.Equal(t, "/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/oauth2/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestProvider_Exchange(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	idp.SetNonce("nonce-1")

	provider := newProvider(t, idp)

	tokens, err := provider.Exchange(t.Context(), "the-code", "the-verifier")
	require.NoError(t, err)

	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEmpty(t, tokens.IDToken)
	assert.True(t, tokens.Expiry.After(time.Now()))

	form := idp.LastTokenRequest()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, "the-verifier", form.Get("code_verifier"))
	assert.Equal(t, "https://app.example.com/oauth2/callback", form.Get("redirect_uri"))
	assert.Equal(t, testClientID, form.Get("client_id"))
	assert.Equal(t, "shhh", form.Get("client_secret"))
}

func TestProvider_ExchangeRejected(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	idp.SetFailExchange(true)

	provider := newProvider(t, idp)

	_, err := provider.Exchange(t.Context(), "bad-code", "verifier")
	assert.ErrorIs(t, err, serviceerr.ErrTokenExchange)
}

func TestProvider_ExchangeWithoutIDToken(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	idp.SetOmitIDToken(true)

	provider := newProvider(t, idp)

	_, err := provider.Exchange(t.Context(), "the-code", "verifier")
	assert.ErrorIs(t, err, serviceerr.ErrTokenExchange)
}

func TestProvider_Refresh(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	provider := newProvider(t, idp)

	tokens, err := provider.Refresh(t.Context(), "old-refresh-token")
	require.NoError(t, err)

	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, 1, idp.RefreshCount())

	form := idp.LastTokenRequest()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "old-refresh-token", form.Get("refresh_token"))
}

func TestProvider_VerifyIDToken(t *testing.T) {
	idp := oidctest.New(t, testClientID)
	provider := newProvider(t, idp)

	now := time.Now()

	valid := func() map[string]any {
		return map[string]any{
			"iss":   idp.URL(),
			"aud":   testClientID,
			"sub":   "user-42",
			"exp":   now.Add(time.Hour).Unix(),
			"iat":   now.Unix(),
			"nonce": "n1",
			"email": "user@example.com",
		}
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := provider.VerifyIDToken(t.Context(), idp.SignIDToken(valid()), "n1")
		require.NoError(t, err)

		assert.Equal(t, "user-42", claims.Subject)
		assert.Equal(t, idp.URL(), claims.Issuer)
		assert.Equal(t, "user@example.com", claims.All["email"])
		assert.WithinDuration(t, now.Add(time.Hour), claims.Expiry, time.Second)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		token := valid()
		token["nonce"] = "n2"

		_, err := provider.VerifyIDToken(t.Context(), idp.SignIDToken(token), "n1")
		assert.ErrorIs(t, err, serviceerr.ErrTokenValidation)
	})

	t.Run("missing nonce", func(t *testing.T) {
		token := valid()
		delete(token, "nonce")

		_, err := provider.VerifyIDToken(t.Context(), idp.SignIDToken(token), "n1")
		assert.ErrorIs(t, err, serviceerr.ErrTokenValidation)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		token := valid()
		token["iss"] = "https://evil.example.com"

		_, err := provider.VerifyIDToken(t.Context(), idp.SignIDToken(token), "n1")
		assert.ErrorIs(t, err, serviceerr.ErrTokenValidation)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		token := valid()
		token["aud"] = "someone-else"

		_, err := provider.VerifyIDToken(t.Context(), idp.SignIDToken(token), "n1")
		assert.ErrorIs(t, err, serviceerr.ErrTokenValidation)
	})

	t.Run("expired token", func(t *testing.T) {
		token := valid()
		token["exp"] = now.Add(-time.Minute).Unix()

		_, err := provider.VerifyIDToken(t.Context(), idp.SignIDToken(token), "n1")
		assert.ErrorIs(t, err, serviceerr.ErrTokenValidation)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := provider.VerifyIDToken(t.Context(), "not.a.jwt", "n1")
		assert.ErrorIs(t, err, serviceerr.ErrTokenValidation)
	})
}
