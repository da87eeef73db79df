package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/repository"
)

// Backend is everything the services need from the backend API.
// *api.Client implements it.
type Backend interface {
	IdentityResolver
	ProfileBackend
}

// Client is the state of one browser: its session and its page data.
type Client struct {
	ID       string
	Session  *SessionStore
	Profiles *ProfileLoader

	unsubscribe func()
}

// Logout signs the browser out and forgets any profile data it was shown.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Session.Logout(ctx)
	c.Profiles.Reset()
	return err
}

func (c *Client) close() {
	c.unsubscribe()
	c.Profiles.Close()
}

// RegistryConfig sizes a ClientRegistry.
type RegistryConfig struct {
	IdleTTL        time.Duration // evict clients unused this long
	MaxClients     int
	RefreshDelay   time.Duration
	ResolveTimeout time.Duration
}

// RegistryStats are counters for the /healthz page and logs.
type RegistryStats struct {
	Size      int   `json:"size"`
	Created   int64 `json:"created"`
	Evictions int64 `json:"evictions"`
}

// ClientRegistry owns the Client of every browser seen recently.
//
// WHY IN MEMORY?
// A Client holds live things (pending identity checks, refresh timers,
// waiters) that cannot be serialized. Only the bearer token has to survive a
// restart or an eviction, and that lives in the TokenRepository. A browser
// whose Client was evicted just bootstraps again from the stored token.
type ClientRegistry struct {
	tokens  repository.TokenRepository
	backend Backend
	cfg     RegistryConfig
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*registryEntry

	created   int64
	evictions int64
}

type registryEntry struct {
	client   *Client
	lastSeen time.Time
}

func NewClientRegistry(tokens repository.TokenRepository, backend Backend, cfg RegistryConfig, logger *slog.Logger) *ClientRegistry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	return &ClientRegistry{
		tokens:  tokens,
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		clients: make(map[string]*registryEntry),
	}
}

// Get returns the Client for clientID, creating it on first use.
func (r *ClientRegistry) Get(clientID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.clients[clientID]; ok {
		e.lastSeen = now
		return e.client
	}

	if len(r.clients) >= r.cfg.MaxClients {
		r.evictOldestLocked()
	}

	c := r.newClient(clientID)
	r.clients[clientID] = &registryEntry{client: c, lastSeen: now}
	atomic.AddInt64(&r.created, 1)
	return c
}

func (r *ClientRegistry) newClient(clientID string) *Client {
	logger := r.logger.With(slog.String("client", clientID))
	session := NewSessionStore(&clientTokens{repo: r.tokens, clientID: clientID}, r.backend, r.cfg.ResolveTimeout, logger)
	profiles := NewProfileLoader(r.backend, session, r.cfg.RefreshDelay, logger)

	c := &Client{ID: clientID, Session: session, Profiles: profiles}

	// Observers run one at a time, so lastToken needs no lock.
	var lastToken string
	c.unsubscribe = session.Subscribe(func(s Session) {
		logger.Debug("session changed", slog.String("status", string(s.Status)))
		// A pending refresh re-read belongs to the token that scheduled it.
		// Signing out and switching accounts both retire that token; a
		// switch never passes through unauthenticated.
		if s.Token != lastToken {
			profiles.StopRefreshes()
			lastToken = s.Token
		}
	})
	return c
}

// EvictIdle drops clients not used since IdleTTL and returns how many.
func (r *ClientRegistry) EvictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.cfg.IdleTTL)
	n := 0
	for id, e := range r.clients {
		if e.lastSeen.Before(cutoff) {
			e.client.close()
			delete(r.clients, id)
			n++
		}
	}
	atomic.AddInt64(&r.evictions, int64(n))
	return n
}

// evictOldestLocked drops the least recently used client.
func (r *ClientRegistry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range r.clients {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID == "" {
		return
	}
	r.clients[oldestID].client.close()
	delete(r.clients, oldestID)
	atomic.AddInt64(&r.evictions, 1)
}

// Sweep evicts idle clients and purges their stored tokens once the tokens
// themselves have been idle for tokenTTL. It is run periodically by the
// server.
func (r *ClientRegistry) Sweep(ctx context.Context, tokenTTL time.Duration) {
	if n := r.EvictIdle(); n > 0 {
		r.logger.Info("evicted idle clients", slog.Int("count", n))
	}
	purged, err := r.tokens.PurgeIdle(ctx, r.now().Add(-tokenTTL))
	if err != nil {
		r.logger.Error("purging idle tokens failed", slog.String("error", err.Error()))
		return
	}
	if purged > 0 {
		r.logger.Info("purged idle tokens", slog.Int64("count", purged))
	}
}

func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *ClientRegistry) Stats() RegistryStats {
	return RegistryStats{
		Size:      r.Len(),
		Created:   atomic.LoadInt64(&r.created),
		Evictions: atomic.LoadInt64(&r.evictions),
	}
}

// Close stops every client's timers.
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.clients {
		e.client.close()
		delete(r.clients, id)
	}
}

// clientTokens scopes a TokenRepository to one client.
type clientTokens struct {
	repo     repository.TokenRepository
	clientID string
}

func (t *clientTokens) Load(ctx context.Context) (string, error) {
	token, err := t.repo.GetToken(ctx, t.clientID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", nil
	}
	return token, err
}

func (t *clientTokens) Save(ctx context.Context, token string) error {
	return t.repo.SaveToken(ctx, t.clientID, token)
}

func (t *clientTokens) Clear(ctx context.Context) error {
	return t.repo.DeleteToken(ctx, t.clientID)
}
