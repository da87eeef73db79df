// Package config loads the front-end's settings from the environment.
//
// SOURCES, IN ORDER:
//  1. A .env file in the working directory, if one exists (github.com/joho/godotenv).
//     Values already present in the real environment win over the file.
//  2. Environment variables, parsed into a tagged struct by
//     github.com/caarlos0/env. Defaults live in the envDefault tags so the
//     struct definition is the single place to read what is configurable.
//
// THE "NOT CONFIGURED" STATE:
// The backend base URL has a documented placeholder default. When API_URL is
// unset, or still equal to one of the placeholders, IsAPIConfigured reports
// false. The landing page then shows a persistent notice and every sign-in
// action is disabled instead of issuing network calls that cannot succeed.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultAPIURL is the placeholder backend URL used when nothing is set.
const DefaultAPIURL = "http://localhost:8000/api"

// placeholderAPIURLs are values that mean "the operator never configured a
// backend". They are compared after trimming a trailing slash.
var placeholderAPIURLs = map[string]bool{
	"":                          true,
	DefaultAPIURL:               true,
	"http://localhost:3000":     true,
	"http://localhost:3000/api": true,
}

// Token store backends.
const (
	TokenStoreSQLite = "sqlite"
	TokenStoreRedis  = "redis"
)

// MinSessionSecretLength mirrors the JWT secret rule used for client cookies.
const MinSessionSecretLength = 16

// Config holds every runtime setting.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// APIURL is the backend base URL, e.g. https://api.example.com/api.
	// NEXT_PUBLIC_API_URL is accepted so existing deployments keep working.
	APIURL       string        `env:"API_URL"`
	LegacyAPIURL string        `env:"NEXT_PUBLIC_API_URL"`
	APITimeout   time.Duration `env:"API_TIMEOUT" envDefault:"10s"`

	DBPath     string `env:"DB_PATH" envDefault:"data/devfolio.db"`
	TokenStore string `env:"TOKEN_STORE" envDefault:"sqlite"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// SessionSecret signs the client cookie and seals stored tokens. When
	// empty, main generates an ephemeral one (sessions then end on restart).
	SessionSecret string `env:"SESSION_SECRET"`
	CookieSecure  bool   `env:"COOKIE_SECURE" envDefault:"false"`

	RefreshDelay   time.Duration `env:"PROFILE_REFRESH_DELAY" envDefault:"2s"`
	ResolveTimeout time.Duration `env:"SESSION_RESOLVE_TIMEOUT" envDefault:"10s"`
	ClientIdleTTL  time.Duration `env:"CLIENT_IDLE_TTL" envDefault:"30m"`
	ClientMax      int           `env:"CLIENT_MAX" envDefault:"10000"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil. Tests pass an explicit map.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.APITimeout <= 0 {
		return errors.New("config: API_TIMEOUT must be positive")
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("config: SESSION_SECRET must be at least %d characters", MinSessionSecretLength)
	}
	switch c.TokenStore {
	case TokenStoreSQLite, TokenStoreRedis:
	default:
		return fmt.Errorf("config: TOKEN_STORE must be %q or %q, got %q", TokenStoreSQLite, TokenStoreRedis, c.TokenStore)
	}
	if c.ClientMax <= 0 {
		return errors.New("config: CLIENT_MAX must be positive")
	}
	return nil
}

// rawAPIURL returns the operator-supplied backend URL, or "" if none.
func (c Config) rawAPIURL() string {
	raw := strings.TrimSpace(c.APIURL)
	if raw == "" {
		raw = strings.TrimSpace(c.LegacyAPIURL)
	}
	return strings.TrimRight(raw, "/")
}

// APIBaseURL is the URL the API client talks to. It falls back to the
// placeholder so error messages can still name an address.
func (c Config) APIBaseURL() string {
	if raw := c.rawAPIURL(); raw != "" {
		return raw
	}
	return DefaultAPIURL
}

// IsAPIConfigured reports whether a real backend URL was supplied.
func (c Config) IsAPIConfigured() bool {
	return !placeholderAPIURLs[c.rawAPIURL()]
}

// Addr is the listen address for http.Server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
