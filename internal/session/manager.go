package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/noncestore"
	"github.com/authward/authward/internal/oidc"
	"github.com/authward/authward/internal/pkce"
	"github.com/authward/authward/internal/serviceerr"
)

// Manager drives the authorization code flow: it opens login attempts,
// finalises callbacks into sessions and resolves session ids back into
// identities, refreshing them when the tokens have expired.
type Manager struct {
	oidc     oidc.Client
	sessions Repository
	nonces   *noncestore.Store
	source   pkce.Source

	sessionDuration time.Duration
	landingPath     string

	now func() time.Time
}

func NewManager(client oidc.Client, sessions Repository, nonces *noncestore.Store, sessionDuration time.Duration, landingPath string) *Manager {
	return &Manager{
		oidc:            client,
		sessions:        sessions,
		nonces:          nonces,
		sessionDuration: sessionDuration,
		landingPath:     landingPath,
		now:             time.Now,
	}
}

// Result is what a finished login hands back to the HTTP layer.
type Result struct {
	SessionID   string
	Destination string
}

// BeginAuth opens a login attempt bound for destination and returns the
// IdP authorization URL to redirect the browser to.
func (m *Manager) BeginAuth(ctx context.Context, destination string) (string, error) {
	entry, err := m.nonces.Create(destination)
	if err != nil {
		return "", fmt.Errorf("creating pending auth entry: %w", err)
	}

	authURL, err := m.oidc.AuthURL(ctx, entry.State, entry.Nonce, challengeS256(entry.Verifier))
	if err != nil {
		return "", fmt.Errorf("building auth url: %w", err)
	}

	return authURL, nil
}

// FinishAuth validates the IdP callback and establishes the session.
// Whatever fails, the state is gone afterwards: Consume removes it on
// the way in, so a replayed callback cannot get this far twice.
func (m *Manager) FinishAuth(ctx context.Context, state, code string) (Result, error) {
	entry, err := m.nonces.Consume(state)
	if err != nil {
		return Result{}, fmt.Errorf("consuming state: %w", err)
	}

	tokens, err := m.oidc.Exchange(ctx, code, entry.Verifier)
	if err != nil {
		return Result{}, fmt.Errorf("exchanging code for tokens: %w", err)
	}

	claims, err := m.oidc.VerifyIDToken(ctx, tokens.IDToken, entry.Nonce)
	if err != nil {
		return Result{}, fmt.Errorf("verifying id token: %w", err)
	}

	slogctx.Info(ctx, "Login completed", "subject", claims.Subject)

	now := m.now()
	sess := Session{
		ID: m.source.SessionID(),
		Identity: Identity{
			Subject:      claims.Subject,
			Issuer:       claims.Issuer,
			Claims:       claims.All,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			Expiry:       tokens.Expiry,
		},
		CreatedAt: now,
		Expiry:    now.Add(m.sessionDuration),
	}

	if err := m.sessions.Store(ctx, sess); err != nil {
		return Result{}, fmt.Errorf("%w: storing session: %v", serviceerr.ErrSessionStore, err)
	}

	destination := entry.Destination
	if destination == "" {
		destination = m.landingPath
	}

	return Result{SessionID: sess.ID, Destination: destination}, nil
}

// Resolve turns a session id into a usable Identity. An identity whose
// tokens have expired is refreshed synchronously in the request path;
// when that is impossible the session is invalidated and ErrNotFound is
// returned so the caller can start a fresh login.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (Identity, error) {
	sess, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return Identity{}, serviceerr.ErrNotFound
		}

		return Identity{}, fmt.Errorf("%w: loading session: %v", serviceerr.ErrSessionStore, err)
	}

	now := m.now()

	if now.After(sess.Expiry) {
		m.invalidate(ctx, sessionID)

		return Identity{}, serviceerr.ErrNotFound
	}

	if now.Before(sess.Identity.Expiry) {
		return sess.Identity, nil
	}

	return m.refresh(ctx, sess)
}

// refresh replaces the session's identity using the refresh grant.
func (m *Manager) refresh(ctx context.Context, sess Session) (Identity, error) {
	if sess.Identity.RefreshToken == "" {
		m.invalidate(ctx, sess.ID)

		return Identity{}, serviceerr.ErrNotFound
	}

	tokens, err := m.oidc.Refresh(ctx, sess.Identity.RefreshToken)
	if err != nil {
		slogctx.Warn(ctx, "Refresh rejected, dropping session", "subject", sess.Identity.Subject, "error", err)
		m.invalidate(ctx, sess.ID)

		return Identity{}, serviceerr.ErrNotFound
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		// IdPs may keep the original refresh token valid instead of rotating
		refreshToken = sess.Identity.RefreshToken
	}

	sess.Identity = Identity{
		Subject:      sess.Identity.Subject,
		Issuer:       sess.Identity.Issuer,
		Claims:       sess.Identity.Claims,
		AccessToken:  tokens.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       tokens.Expiry,
	}

	if err := m.sessions.Store(ctx, sess); err != nil {
		return Identity{}, fmt.Errorf("%w: storing refreshed session: %v", serviceerr.ErrSessionStore, err)
	}

	slogctx.Debug(ctx, "Refreshed session tokens", "subject", sess.Identity.Subject)

	return sess.Identity, nil
}

// Logout drops the session. Unknown session ids are fine; the outcome
// is the same.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.sessions.Invalidate(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: invalidating session: %v", serviceerr.ErrSessionStore, err)
	}

	return nil
}

func (m *Manager) invalidate(ctx context.Context, sessionID string) {
	if err := m.sessions.Invalidate(ctx, sessionID); err != nil {
		slogctx.Warn(ctx, "Could not invalidate session", "error", err)
	}
}

func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))

	return base64.RawURLEncoding.EncodeToString(sum[:])
}
