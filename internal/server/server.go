// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer; it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it testable: server_test.go
// builds a Server against an in-memory database and drives it with httptest,
// without running main.
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Config + auth.Keys → passed to Server
//
// Server.New() creates:
//
//	token store (sqlite or redis) → SealedTokens ┐
//	api.Client ──────────────────────────────────┴→ ClientRegistry → handlers
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/devfolio-web/internal/api"
	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/config"
	"github.com/sakif/devfolio-web/internal/handler"
	"github.com/sakif/devfolio-web/internal/middleware"
	"github.com/sakif/devfolio-web/internal/repository"
	redisRepo "github.com/sakif/devfolio-web/internal/repository/redis"
	sqliteRepo "github.com/sakif/devfolio-web/internal/repository/sqlite"
	"github.com/sakif/devfolio-web/internal/service"
	"github.com/sakif/devfolio-web/internal/telemetry"
	"github.com/sakif/devfolio-web/internal/view"
)

// sweepInterval is how often idle clients and stale stored tokens are dropped.
const sweepInterval = time.Minute

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the token store connection and the client registry. Both
// are released in Close, which Start calls during graceful shutdown.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	backend  *api.Client
	registry *service.ClientRegistry
	cookies  *auth.TokenService
	closers  []func() error
}

// New creates a Server for cfg.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the token store picked by TOKEN_STORE and seal it with keys.Seal
//  2. Create the backend API client
//  3. Create the ClientRegistry that hands each browser its services
//  4. Wire handlers to routes
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` (and redis as `redisRepo`) to
// avoid confusion with the driver packages of the same name.
func New(ctx context.Context, cfg config.Config, keys auth.Keys, logger *slog.Logger) (*Server, error) {
	cookies, err := auth.NewTokenService(keys.Cookie)
	if err != nil {
		return nil, fmt.Errorf("creating cookie signer: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		cookies: cookies,
		backend: api.New(&cfg),
	}

	store, err := s.openTokenStore(ctx)
	if err != nil {
		return nil, err
	}
	sealed := repository.NewSealedTokens(store, auth.NewSealer(keys.Seal))

	s.registry = service.NewClientRegistry(sealed, s.backend, service.RegistryConfig{
		IdleTTL:        cfg.ClientIdleTTL,
		MaxClients:     cfg.ClientMax,
		RefreshDelay:   cfg.RefreshDelay,
		ResolveTimeout: cfg.ResolveTimeout,
	}, logger)

	s.setupRoutes()
	return s, nil
}

// openTokenStore connects the configured TokenRepository and registers its
// cleanup.
func (s *Server) openTokenStore(ctx context.Context) (repository.TokenRepository, error) {
	switch s.config.TokenStore {
	case config.TokenStoreRedis:
		client, err := redisRepo.NewClient(ctx, s.config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		return redisRepo.NewStore(client, auth.ClientTokenLifetime), nil

	default:
		db, err := sqliteRepo.New(s.config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		return db, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz              → liveness + registry counters (JSON)
// GET    /static/*             → stylesheet
// GET    /oauth/callback       → finish sign-in
// GET    /                     → landing page
// GET    /auth/github/login    → start sign-in
// POST   /logout               → sign out
// GET    /dashboard            → own profile + edit form   [session required]
// GET    /dashboard/state      → own profile state (JSON)   [session required]
// POST   /dashboard/profile    → save the edit form         [session required]
// POST   /dashboard/refresh    → refresh GitHub stats       [session required]
// GET    /{username}           → public profile
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info
// 4. Recoverer: catches panics and returns 500 instead of crashing
//
// Page routes then add ClientCookie → AttachClient → Bootstrap. The
// callback skips Bootstrap because it consumes the token parameters itself.
func (s *Server) setupRoutes() {
	settleTimeout := s.config.ResolveTimeout + time.Second

	pages := handler.NewPageHandler(s.backend, settleTimeout, s.logger)
	authHandler := handler.NewAuthHandler(s.backend, settleTimeout, s.logger)
	dashboard := handler.NewDashboardHandler(s.logger)
	health := handler.NewHealthHandler(s.registry, s.backend, s.backend.BaseURL())

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.NotFound(pages.HandleNotFound)

	// === Stateless Routes ===
	// No client cookie: health checks and assets must not create clients.
	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/static/*", view.StaticHandler())

	// === Browser Routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.ClientCookie(s.cookies, s.config.CookieSecure, s.logger))
		r.Use(handler.AttachClient(s.registry, s.logger))

		r.Get("/oauth/callback", authHandler.HandleGitHubCallback)

		r.Group(func(r chi.Router) {
			r.Use(handler.Bootstrap)

			r.Get("/", pages.HandleLanding)
			r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
			r.Post("/logout", authHandler.HandleLogout)

			r.Route("/dashboard", func(r chi.Router) {
				r.Use(handler.RequireSession(settleTimeout))
				r.Get("/", dashboard.HandleShow)
				r.Get("/state", dashboard.HandleState)
				r.Post("/profile", dashboard.HandleUpdate)
				r.Post("/refresh", dashboard.HandleRefresh)
			})

			r.Get("/{username}", pages.HandlePublicProfile)
		})
	})
}

// Handler returns the root handler with tracing applied.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, telemetry.ServiceName,
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
	)
}

// Registry exposes the client registry (tests, diagnostics).
func (s *Server) Registry() *service.ClientRegistry { return s.registry }

// Close stops background work and releases the token store.
func (s *Server) Close() error {
	s.registry.Close()
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// sweep periodically evicts idle clients and purges tokens of clients that
// have not been seen for a whole cookie lifetime.
func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.Sweep(ctx, auth.ClientTokenLifetime)
		}
	}
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the sweeper and the client registry, then close the token store
//
// If we skip step 3, the database file might be left in an inconsistent state.
// The deferred Close ensures this happens even if something panics.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("closing server resources", slog.String("error", err.Error()))
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweep(sweepCtx)

	// Create the HTTP server with sensible timeouts. WriteTimeout leaves room
	// for a page that waits on the identity check and then on the backend.
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.ResolveTimeout + 2*s.config.APITimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("api_url", s.backend.BaseURL()),
			slog.Bool("api_configured", s.backend.Configured()),
			slog.String("token_store", s.config.TokenStore),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
