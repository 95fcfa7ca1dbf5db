// Package config defines the necessary types to configure the daemon.
// An example config file config.yaml is provided in the repository.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/authward/authward/internal/serviceerr"
)

type Config struct {
	Application Application `yaml:"application"`
	Logger      Logger      `yaml:"logger"`
	HTTP        HTTPServer  `yaml:"http"`
	Provider    Provider    `yaml:"provider"`
	Auth        Auth        `yaml:"auth"`
	Store       Store       `yaml:"store"`
	Upstream    Upstream    `yaml:"upstream"`
}

type Application struct {
	Name string `yaml:"name"`
}

type Logger struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

type HTTPServer struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Provider describes the IdP this relying party talks to.
type Provider struct {
	IssuerURL    string    `yaml:"issuerURL"`
	ClientID     string    `yaml:"clientID"`
	ClientSecret SourceRef `yaml:"clientSecret"`
	RedirectURL  string    `yaml:"redirectURL"`
	Scopes       []string  `yaml:"scopes"`

	// RequestTimeout bounds every network call to the IdP, so a slow
	// token endpoint surfaces as idp_unreachable instead of hanging the
	// request.
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	DiscoveryCacheTTL time.Duration `yaml:"discoveryCacheTTL"`
}

type Auth struct {
	LoginPath   string   `yaml:"loginPath"`
	LogoutPath  string   `yaml:"logoutPath"`
	LandingPath string   `yaml:"landingPath"`
	SkipPaths   []string `yaml:"skipPaths"`

	StateTTL        time.Duration `yaml:"stateTTL"`
	SessionDuration time.Duration `yaml:"sessionDuration"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`

	SessionCookie CookieTemplate `yaml:"sessionCookie"`
}

type Store struct {
	// Kind selects the session store backend: memory, valkey or postgres.
	Kind string `yaml:"kind"`

	Valkey   Valkey   `yaml:"valkey"`
	Database Database `yaml:"database"`
}

type Valkey struct {
	Address  string    `yaml:"address"`
	Username SourceRef `yaml:"username"`
	Password SourceRef `yaml:"password"`
	Prefix   string    `yaml:"prefix"`
}

type Database struct {
	Name     string    `yaml:"name"`
	Port     string    `yaml:"port"`
	Host     SourceRef `yaml:"host"`
	User     SourceRef `yaml:"user"`
	Password SourceRef `yaml:"password"`
}

// Upstream is the application the middleware protects. When the URL is
// empty the daemon serves its built-in whoami handler instead.
type Upstream struct {
	URL string `yaml:"url"`
}

const (
	StoreKindMemory   = "memory"
	StoreKindValkey   = "valkey"
	StoreKindPostgres = "postgres"
)

func (c *Config) applyDefaults() {
	if c.Application.Name == "" {
		c.Application.Name = "authward"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if len(c.Provider.Scopes) == 0 {
		c.Provider.Scopes = []string{"openid", "profile", "email"}
	}
	if c.Provider.RequestTimeout == 0 {
		c.Provider.RequestTimeout = 10 * time.Second
	}
	if c.Provider.DiscoveryCacheTTL == 0 {
		c.Provider.DiscoveryCacheTTL = time.Hour
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = "/login"
	}
	if c.Auth.LogoutPath == "" {
		c.Auth.LogoutPath = "/logout"
	}
	if c.Auth.LandingPath == "" {
		c.Auth.LandingPath = "/"
	}
	if c.Auth.StateTTL == 0 {
		c.Auth.StateTTL = 10 * time.Minute
	}
	if c.Auth.SessionDuration == 0 {
		c.Auth.SessionDuration = 12 * time.Hour
	}
	if c.Auth.SweepInterval == 0 {
		c.Auth.SweepInterval = time.Minute
	}
	if c.Auth.SessionCookie.Name == "" {
		c.Auth.SessionCookie = CookieTemplate{
			Name:     "__Host-authward-session",
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
			SameSite: CookieSameSiteLax,
		}
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreKindMemory
	}
}

// Validate reports configuration the process must not start with.
func (c *Config) Validate() error {
	if c.Provider.IssuerURL == "" {
		return fmt.Errorf("%w: provider.issuerURL is required", serviceerr.ErrConfiguration)
	}
	if c.Provider.ClientID == "" {
		return fmt.Errorf("%w: provider.clientID is required", serviceerr.ErrConfiguration)
	}
	if c.Provider.RedirectURL == "" {
		return fmt.Errorf("%w: provider.redirectURL is required", serviceerr.ErrConfiguration)
	}

	redirect, err := url.Parse(c.Provider.RedirectURL)
	if err != nil || redirect.Path == "" {
		return fmt.Errorf("%w: provider.redirectURL must be an absolute URL with a path", serviceerr.ErrConfiguration)
	}

	switch c.Store.Kind {
	case StoreKindMemory, StoreKindValkey, StoreKindPostgres:
	default:
		return fmt.Errorf("%w: unknown store kind %q", serviceerr.ErrConfiguration, c.Store.Kind)
	}

	if c.Upstream.URL != "" {
		if _, err := url.Parse(c.Upstream.URL); err != nil {
			return fmt.Errorf("%w: parsing upstream.url: %v", serviceerr.ErrConfiguration, err)
		}
	}

	for _, p := range c.Auth.SkipPaths {
		if p == "" || p[0] != '/' {
			return fmt.Errorf("%w: skip path %q must start with /", serviceerr.ErrConfiguration, p)
		}
	}

	return nil
}

// CallbackPath is the path component of the configured redirect URL.
func (c *Config) CallbackPath() string {
	u, err := url.Parse(c.Provider.RedirectURL)
	if err != nil {
		return ""
	}

	return u.Path
}
