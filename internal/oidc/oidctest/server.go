// Package oidctest runs an in-process identity provider for tests. It
// serves real discovery and JWKS documents and signs real ID tokens, so
// the verification path under test is the production one.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const keyID = "test-signing-key"

type Server struct {
	t          *testing.T
	httpServer *httptest.Server
	key        *rsa.PrivateKey
	signer     jose.Signer

	mu               sync.Mutex
	clientID         string
	subject          string
	nonce            string
	extraClaims      map[string]any
	tokenTTL         time.Duration
	failExchange     bool
	omitIDToken      bool
	exchangeCount    int
	refreshCount     int
	lastTokenRequest url.Values
}

// New starts a fake IdP. Callers own nothing: the server is shut down
// with the test.
func New(t *testing.T, clientID string) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithHeader("kid", keyID),
	)
	require.NoError(t, err)

	s := &Server{
		t:        t,
		key:      key,
		signer:   signer,
		clientID: clientID,
		subject:  "test-subject",
		tokenTTL: time.Hour,
	}

	s.httpServer = httptest.NewServer(s)
	t.Cleanup(s.httpServer.Close)

	return s
}

func (s *Server) URL() string { return s.httpServer.URL }

// SetNonce controls the nonce claim embedded in tokens the token
// endpoint mints.
func (s *Server) SetNonce(nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce = nonce
}

func (s *Server) SetSubject(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = subject
}

func (s *Server) SetExtraClaims(claims map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraClaims = claims
}

func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// SetFailExchange makes the token endpoint reject every grant.
func (s *Server) SetFailExchange(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failExchange = fail
}

// SetOmitIDToken drops the id_token from exchange responses.
func (s *Server) SetOmitIDToken(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitIDToken = omit
}

func (s *Server) ExchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeCount
}

func (s *Server) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCount
}

// LastTokenRequest returns the form values of the most recent token
// endpoint call.
func (s *Server) LastTokenRequest() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTokenRequest
}

// SignIDToken signs an arbitrary claim set with the server's key. The
// caller supplies every claim, including iss/aud/exp.
func (s *Server) SignIDToken(claims map[string]any) string {
	raw, err := jwt.Signed(s.signer).Claims(claims).Serialize()
	require.NoError(s.t, err)

	return raw
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		s.writeJSON(w, map[string]any{
			"issuer":                                s.httpServer.URL,
			"authorization_endpoint":                s.httpServer.URL + "/oauth2/authorize",
			"token_endpoint":                        s.httpServer.URL + "/oauth2/token",
			"jwks_uri":                              s.httpServer.URL + "/.well-known/jwks.json",
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"response_types_supported":              []string{"code"},
		})
	case "/.well-known/jwks.json":
		s.writeJSON(w, jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{
				Key:       s.key.Public(),
				KeyID:     keyID,
				Algorithm: string(jose.RS256),
				Use:       "sig",
			}},
		})
	case "/oauth2/token":
		s.handleToken(w, req)
	default:
		http.NotFound(w, req)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, req *http.Request) {
	require.NoError(s.t, req.ParseForm())

	s.mu.Lock()
	s.lastTokenRequest = req.PostForm

	grant := req.PostForm.Get("grant_type")
	switch grant {
	case "authorization_code":
		s.exchangeCount++
	case "refresh_token":
		s.refreshCount++
	}

	fail := s.failExchange
	omit := s.omitIDToken
	claims := map[string]any{
		"iss": s.httpServer.URL,
		"aud": s.clientID,
		"sub": s.subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(s.tokenTTL).Unix(),
	}
	if s.nonce != "" {
		claims["nonce"] = s.nonce
	}
	for k, v := range s.extraClaims {
		claims[k] = v
	}
	ttl := s.tokenTTL
	s.mu.Unlock()

	if fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "exchange rejected"}`))

		return
	}

	response := map[string]any{
		"access_token":  "access-" + grant,
		"refresh_token": "refresh-" + grant,
		"token_type":    "Bearer",
		"expires_in":    int64(ttl / time.Second),
	}
	if !omit {
		response["id_token"] = s.SignIDToken(claims)
	}

	s.writeJSON(w, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, out any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(s.t, json.NewEncoder(w).Encode(out))
}
