package business

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/authn"
	"github.com/authward/authward/internal/business/server"
	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/noncestore"
	"github.com/authward/authward/internal/oidc"
	"github.com/authward/authward/internal/session"
	sessionmemory "github.com/authward/authward/internal/session/memory"
	sessionsql "github.com/authward/authward/internal/session/sql"
	sessionvalkey "github.com/authward/authward/internal/session/valkey"
)

// Main runs the relying party proxy until ctx is cancelled.
func Main(ctx context.Context, cfg *config.Config) error {
	provider, err := oidc.NewProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("initialising the identity provider client: %w", err)
	}

	// An unreachable or misconfigured discovery document must prevent
	// the server from accepting traffic at all.
	if _, err := provider.Discover(ctx); err != nil {
		return fmt.Errorf("verifying identity provider discovery: %w", err)
	}

	sessions, closeFn, err := initSessionRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the session store: %w", err)
	}

	defer closeFn()

	if !cfg.Auth.SessionCookie.Secure || !cfg.Auth.SessionCookie.HTTPOnly {
		slogctx.Warn(ctx, "Session cookie is configured without Secure or HttpOnly",
			"secure", cfg.Auth.SessionCookie.Secure, "httpOnly", cfg.Auth.SessionCookie.HTTPOnly)
	}

	nonces := noncestore.New(cfg.Auth.StateTTL)
	manager := session.NewManager(provider, sessions, nonces, cfg.Auth.SessionDuration, cfg.Auth.LandingPath)

	upstream, err := upstreamHandler(cfg)
	if err != nil {
		return fmt.Errorf("initialising the upstream handler: %w", err)
	}

	middleware := authn.NewMiddleware(cfg.Auth, cfg.CallbackPath(), manager)

	go runSweeper(ctx, cfg, nonces, sessions)

	return server.StartHTTPServer(ctx, cfg, middleware.Wrap(upstream))
}

// initSessionRepository picks the session store backend from the
// config. The returned closeFn releases the backend's connections.
func initSessionRepository(ctx context.Context, cfg *config.Config) (_ session.Repository, closeFn func(), _ error) {
	switch cfg.Store.Kind {
	case config.StoreKindMemory:
		return sessionmemory.NewRepository(), func() {}, nil

	case config.StoreKindValkey:
		valkeyUsername, err := cfg.Store.Valkey.Username.Resolve()
		if err != nil {
			return nil, nil, fmt.Errorf("loading valkey username: %w", err)
		}

		valkeyPassword, err := cfg.Store.Valkey.Password.Resolve()
		if err != nil {
			return nil, nil, fmt.Errorf("loading valkey password: %w", err)
		}

		valkeyClient, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{cfg.Store.Valkey.Address},
			Username:    valkeyUsername,
			Password:    valkeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return sessionvalkey.NewRepository(valkeyClient, cfg.Store.Valkey.Prefix), valkeyClient.Close, nil

	case config.StoreKindPostgres:
		connStr, err := config.MakeConnStr(cfg.Store.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("making dsn from config: %w", err)
		}

		db, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, nil, fmt.Errorf("initialising pgxpool connection: %w", err)
		}

		return sessionsql.NewRepository(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// upstreamHandler is the application behind the middleware: a reverse
// proxy to the configured URL, or the built-in whoami handler when no
// upstream is configured.
func upstreamHandler(cfg *config.Config) (http.Handler, error) {
	if cfg.Upstream.URL == "" {
		return server.WhoamiHandler(), nil
	}

	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url: %w", err)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()

			if identity, ok := authn.IdentityFromContext(r.In.Context()); ok {
				r.Out.Header.Set("X-Auth-Request-Subject", identity.Subject)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slogctx.Error(r.Context(), "Upstream request failed", "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return proxy, nil
}
