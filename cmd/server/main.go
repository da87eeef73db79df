// Package main is the entry point for the devfolio web server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal; its job is to:
// 1. Read configuration (from env vars and an optional .env file)
// 2. Create dependencies (logger, tracing, secrets)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
// This separation makes the app testable and its components reusable.
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// A project might have multiple executables (e.g., cmd/server, cmd/migrate, cmd/cli).
// Each gets its own directory with its own main.go.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/config"
	"github.com/sakif/devfolio-web/internal/server"
	"github.com/sakif/devfolio-web/internal/telemetry"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reads .env (if present) and then the environment. See
	// internal/config for every variable and its default.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// slog.NewTextHandler outputs human-readable logs. LOG_LEVEL picks the
	// minimum level (debug, info, warn, error).
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if !cfg.IsAPIConfigured() {
		logger.Warn("API_URL is not set; sign-in is disabled until it points at the backend",
			slog.String("default", config.DefaultAPIURL),
		)
	}

	// === 3. SECRETS ===
	// SESSION_SECRET must be a long random string. Use:
	//   SESSION_SECRET=$(openssl rand -hex 32)
	// If unset, a random one is generated: the server works, but every
	// browser is signed out on restart because old cookies and stored tokens
	// can no longer be verified.
	secret := cfg.SessionSecret
	if secret == "" {
		secret, err = auth.RandomSecret()
		if err != nil {
			logger.Error("generating session secret", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	keys, err := auth.DeriveKeys(secret)
	if err != nil {
		logger.Error("deriving keys", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. DATABASE PATH ===
	// Ensure the data directory exists when tokens are kept in SQLite.
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.TokenStore == config.TokenStoreSQLite && cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. TRACING ===
	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	// === 6. CREATE AND START THE SERVER ===
	srv, err := server.New(ctx, cfg, keys, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
