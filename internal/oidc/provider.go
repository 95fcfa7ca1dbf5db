package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	gocache "github.com/patrickmn/go-cache"
	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/serviceerr"
)

const (
	wkocCacheKey = "wkoc"
	jwksCacheKey = "jwks"

	wellKnownPath = "/.well-known/openid-configuration"
)

// Provider is the network-backed Client. Discovery metadata and the
// JWKS are cached between requests; every outbound call carries a
// bounded timeout so a stalled IdP cannot hang the request path.
type Provider struct {
	issuerURL    string
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string

	httpClient *http.Client
	timeout    time.Duration
	cache      *gocache.Cache

	now func() time.Time
}

var _ Client = (*Provider)(nil)

func NewProvider(cfg config.Provider) (*Provider, error) {
	secret, err := cfg.ClientSecret.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving client secret: %v", serviceerr.ErrConfiguration, err)
	}

	return &Provider{
		issuerURL:    strings.TrimSuffix(cfg.IssuerURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: secret,
		redirectURL:  cfg.RedirectURL,
		scopes:       cfg.Scopes,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		timeout:      cfg.RequestTimeout,
		cache:        gocache.New(cfg.DiscoveryCacheTTL, 2*cfg.DiscoveryCacheTTL),
		now:          time.Now,
	}, nil
}

func (p *Provider) Discover(ctx context.Context) (Configuration, error) {
	if cached, ok := p.cache.Get(wkocCacheKey); ok {
		//nolint:forcetypeassert
		return cached.(Configuration), nil
	}

	var conf Configuration
	if err := p.getJSON(ctx, p.issuerURL+wellKnownPath, &conf); err != nil {
		return Configuration{}, fmt.Errorf("fetching openid configuration: %w", err)
	}

	if conf.Issuer != p.issuerURL {
		return Configuration{}, fmt.Errorf("%w: discovery issuer %q does not match configured issuer %q",
			serviceerr.ErrConfiguration, conf.Issuer, p.issuerURL)
	}

	p.cache.SetDefault(wkocCacheKey, conf)

	return conf, nil
}

func (p *Provider) AuthURL(ctx context.Context, state, nonce, challenge string) (string, error) {
	conf, err := p.Discover(ctx)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(conf.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("parsing authorisation endpoint url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", p.redirectURL)
	q.Set("scope", strings.Join(p.scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (p *Provider) Exchange(ctx context.Context, code, verifier string) (Tokens, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("code_verifier", verifier)
	data.Set("redirect_uri", p.redirectURL)

	tokens, err := p.tokenRequest(ctx, data)
	if err != nil {
		return Tokens{}, err
	}

	if tokens.IDToken == "" {
		return Tokens{}, fmt.Errorf("%w: response carries no id_token", serviceerr.ErrTokenExchange)
	}

	return tokens, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return p.tokenRequest(ctx, data)
}

func (p *Provider) tokenRequest(ctx context.Context, data url.Values) (Tokens, error) {
	conf, err := p.Discover(ctx)
	if err != nil {
		return Tokens{}, err
	}

	data.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		data.Set("client_secret", p.clientSecret)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return Tokens{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Tokens{}, asUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slogctx.Warn(ctx, "Token endpoint rejected the request", "status", resp.StatusCode, "body", string(body))

		return Tokens{}, fmt.Errorf("%w: token endpoint returned status %d", serviceerr.ErrTokenExchange, resp.StatusCode)
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return Tokens{}, fmt.Errorf("%w: decoding response: %v", serviceerr.ErrTokenExchange, err)
	}

	tokens.Expiry = p.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)

	return tokens, nil
}

func (p *Provider) VerifyIDToken(ctx context.Context, rawToken, nonce string) (Claims, error) {
	conf, err := p.Discover(ctx)
	if err != nil {
		return Claims{}, err
	}

	algs := make([]jose.SignatureAlgorithm, 0, len(conf.IDTokenSigningAlgValuesSupported))
	for _, alg := range conf.IDTokenSigningAlgValuesSupported {
		algs = append(algs, jose.SignatureAlgorithm(alg))
	}
	if len(algs) == 0 {
		algs = []jose.SignatureAlgorithm{jose.RS256}
	}

	token, err := jwt.ParseSigned(rawToken, algs)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: parsing id token: %v", serviceerr.ErrTokenValidation, err)
	}

	keyset, err := p.keySet(ctx, conf)
	if err != nil {
		return Claims{}, fmt.Errorf("getting jwks for the provider: %w", err)
	}

	var standard jwt.Claims
	var all map[string]any
	if err := token.Claims(keyset, &standard, &all); err != nil {
		return Claims{}, fmt.Errorf("%w: verifying signature: %v", serviceerr.ErrTokenValidation, err)
	}

	if standard.Issuer != p.issuerURL {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", serviceerr.ErrTokenValidation)
	}
	if !standard.Audience.Contains(p.clientID) {
		return Claims{}, fmt.Errorf("%w: audience does not contain the client id", serviceerr.ErrTokenValidation)
	}
	if standard.Expiry == nil || p.now().After(standard.Expiry.Time()) {
		return Claims{}, fmt.Errorf("%w: token is expired", serviceerr.ErrTokenValidation)
	}

	tokenNonce, _ := all["nonce"].(string)
	if tokenNonce == "" || tokenNonce != nonce {
		// the check defeating token substitution across concurrent logins
		return Claims{}, fmt.Errorf("%w: nonce mismatch", serviceerr.ErrTokenValidation)
	}

	return Claims{
		Subject: standard.Subject,
		Issuer:  standard.Issuer,
		Expiry:  standard.Expiry.Time(),
		All:     all,
	}, nil
}

func (p *Provider) keySet(ctx context.Context, conf Configuration) (*jose.JSONWebKeySet, error) {
	if cached, ok := p.cache.Get(jwksCacheKey); ok {
		//nolint:forcetypeassert
		return cached.(*jose.JSONWebKeySet), nil
	}

	keyset := &jose.JSONWebKeySet{}
	if err := p.getJSON(ctx, conf.JwksURI, keyset); err != nil {
		return nil, err
	}

	p.cache.SetDefault(jwksCacheKey, keyset)

	return keyset, nil
}

func (p *Provider) getJSON(ctx context.Context, uri string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("creating a new HTTP request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return asUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", serviceerr.ErrIdPUnreachable, uri, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", uri, err)
	}

	return nil
}

func asUnreachable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	return fmt.Errorf("%w: %v", serviceerr.ErrIdPUnreachable, err)
}
