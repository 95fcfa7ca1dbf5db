// Package oidc wraps the protocol-level conversation with the identity
// provider: discovery, the authorization redirect URL, the code and
// refresh grants on the token endpoint, and ID token verification.
package oidc

import (
	"context"
	"time"
)

// Tokens is the token endpoint response.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`

	// Expiry is computed from ExpiresIn when the response is received.
	Expiry time.Time `json:"-"`
}

// Claims is the verified content of an ID token.
type Claims struct {
	Subject string
	Issuer  string
	Expiry  time.Time

	// All holds every claim of the token, including the ones above.
	All map[string]any
}

// Client is the capability the authentication flow consumes. The
// network-backed implementation is Provider; tests substitute fakes so
// the state machine can be exercised without a live IdP.
type Client interface {
	// Discover fetches (or returns the cached) provider metadata.
	Discover(ctx context.Context) (Configuration, error)

	// AuthURL builds the authorization endpoint redirect for one login
	// attempt.
	AuthURL(ctx context.Context, state, nonce, challenge string) (string, error)

	// Exchange trades an authorization code for tokens, presenting the
	// same redirect URI the code was issued against.
	Exchange(ctx context.Context, code, verifier string) (Tokens, error)

	// Refresh runs the refresh grant.
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)

	// VerifyIDToken checks signature, issuer, audience, expiry and the
	// nonce claim, returning the verified claims.
	VerifyIDToken(ctx context.Context, rawToken, nonce string) (Claims, error)
}
