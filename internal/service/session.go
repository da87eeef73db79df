// Package service holds the per-browser state of the front-end: who is
// signed in (SessionStore) and what the pages are showing (ProfileLoader).
//
// LAYERS:
//
//	handler (HTTP) → ClientRegistry → SessionStore  → api.Client (backend)
//	                               ↘ ProfileLoader ↗
//
// Nothing in this package knows about HTTP requests or HTML. Handlers ask a
// ClientRegistry for the bundle of the calling browser and drive it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/model"
)

// Status is the authentication state of one browser.
type Status string

const (
	StatusBootstrapping   Status = "bootstrapping"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Session is an immutable snapshot of a SessionStore.
//
// User is only ever set together with Token. Notice carries an
// ErrUnreachable error when the last identity check could not reach the
// backend at all, so the page can say so instead of looking signed out for no
// reason.
type Session struct {
	Token  string
	User   *model.UserIdentity
	Status Status
	Notice error
}

func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil && s.Token != ""
}

// TokenStore persists the bearer token of one browser. Load returns "" and a
// nil error when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// IdentityResolver exchanges a bearer token for the account it belongs to.
type IdentityResolver interface {
	CurrentUser(ctx context.Context, token string) (*model.UserIdentity, error)
}

// Query parameters the backend appends to the OAuth completion redirect.
const (
	TokenParam    = "token"
	ProviderParam = "provider"
	ErrorParam    = "error"

	ProviderGitHub = "github"
)

// MaxTokenLength bounds what is accepted as a bearer token from a URL.
const MaxTokenLength = 4096

// WellFormedToken reports whether s looks like a bearer token: 1 to
// MaxTokenLength visible ASCII characters.
func WellFormedToken(s string) bool {
	if s == "" || len(s) > MaxTokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// SessionStore is the single source of truth for who is signed in on one
// browser.
//
// GENERATIONS:
// Every time a token is adopted (or dropped) gen is incremented. An identity
// check remembers the gen it was started for and its result is applied only
// if gen has not moved since. This is "last write wins by token": a slow
// answer for an old token can never overwrite the session of a newer one,
// whatever order the answers arrive in.
//
// ONE CHECK PER TOKEN:
// Checks run through a singleflight.Group keyed by token, so concurrent
// adoptions of the same token share one backend call.
//
// OBSERVERS:
// Subscribe callbacks run synchronously after each change, in order, on the
// goroutine that made the change. They must not call back into the store.
type SessionStore struct {
	store          TokenStore
	resolver       IdentityResolver
	logger         *slog.Logger
	resolveTimeout time.Duration

	mu           sync.Mutex
	session      Session
	gen          uint64
	bootstrapped bool
	changed      chan struct{} // closed and replaced on every change

	notifyMu  sync.Mutex
	observers map[int]func(Session)
	nextObs   int

	flight   singleflight.Group
	inflight sync.WaitGroup
}

// NewSessionStore creates a store in StatusBootstrapping. Nothing is read
// until the first Bootstrap call.
func NewSessionStore(store TokenStore, resolver IdentityResolver, resolveTimeout time.Duration, logger *slog.Logger) *SessionStore {
	if resolveTimeout <= 0 {
		resolveTimeout = 10 * time.Second
	}
	return &SessionStore{
		store:          store,
		resolver:       resolver,
		logger:         logger,
		resolveTimeout: resolveTimeout,
		session:        Session{Status: StatusBootstrapping},
		changed:        make(chan struct{}),
		observers:      make(map[int]func(Session)),
	}
}

// Snapshot returns the current session.
func (s *SessionStore) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Bootstrap inspects the URL the browser navigated to.
//
// FLOW:
//  1. u carries token (+ provider=github) → persist it, adopt it and start the
//     identity check. The parameters are removed from the returned URL either
//     way, so a token never stays in history or a Referer header, even a
//     malformed one that is not adopted.
//  2. No token adopted and this is the first call → load the persisted token
//     and adopt it, or settle as unauthenticated when there is none.
//  3. Later calls without a URL token change nothing.
//
// stripped reports whether the caller should redirect to clean.
func (s *SessionStore) Bootstrap(ctx context.Context, u *url.URL) (clean *url.URL, stripped bool) {
	clean = u
	adopted := false

	if u != nil {
		q := u.Query()
		if q.Has(TokenParam) {
			token, provider := q.Get(TokenParam), q.Get(ProviderParam)
			q.Del(TokenParam)
			q.Del(ProviderParam)
			cp := *u
			cp.RawQuery = q.Encode()
			clean, stripped = &cp, true

			if provider == ProviderGitHub && WellFormedToken(token) {
				if err := s.Login(ctx, token); err != nil {
					s.logger.Error("adopting token from URL failed", slog.String("error", err.Error()))
				} else {
					adopted = true
				}
			} else {
				s.logger.Warn("ignoring malformed token parameter",
					slog.String("provider", provider),
					slog.Int("length", len(token)),
				)
			}
		}
	}

	s.mu.Lock()
	if adopted || s.bootstrapped {
		s.bootstrapped = true
		s.mu.Unlock()
		return clean, stripped
	}
	s.bootstrapped = true
	gen := s.gen
	s.mu.Unlock()

	// Storage is read unlocked so Snapshot and Settled do not wait on it.
	token, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("loading persisted token failed", slog.String("error", err.Error()))
		token = ""
	}

	s.mu.Lock()
	if gen != s.gen {
		// A Login or Logout during the read has decided the session.
		s.mu.Unlock()
		s.logger.Debug("dropping persisted token read superseded by a newer session")
		return clean, stripped
	}
	if token == "" {
		s.gen++
		s.setLocked(Session{Status: StatusUnauthenticated})
		return clean, stripped
	}
	gen = s.adoptLocked(token)
	s.startResolve(ctx, token, gen)
	return clean, stripped
}

// Login persists token, adopts it and starts the identity check. It returns
// before the check completes; use Settled to wait for it.
func (s *SessionStore) Login(ctx context.Context, token string) error {
	if !WellFormedToken(token) {
		return apperror.ValidationFailed("token", "malformed token")
	}

	s.mu.Lock()
	if err := s.store.Save(ctx, token); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("service/session: persisting token: %w", err)
	}
	s.bootstrapped = true
	gen := s.adoptLocked(token)
	s.startResolve(ctx, token, gen)
	return nil
}

// ResolveIdentity checks token against the backend and applies the result if
// token is still the active token. It blocks until the check finishes and
// returns the resulting snapshot.
//
// Any failure is fail-closed: the token is dropped from memory and storage
// and the session becomes unauthenticated.
func (s *SessionStore) ResolveIdentity(ctx context.Context, token string) Session {
	s.mu.Lock()
	if token == "" || s.session.Token != token {
		snap := s.session
		s.mu.Unlock()
		return snap
	}
	gen := s.gen
	s.mu.Unlock()

	s.resolve(ctx, token, gen)
	return s.Snapshot()
}

// Logout forgets the token in memory and in storage. The backend is not
// contacted.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.bootstrapped = true
	s.gen++
	err := s.store.Clear(ctx)
	s.setLocked(Session{Status: StatusUnauthenticated})

	if err != nil {
		return fmt.Errorf("service/session: clearing token: %w", err)
	}
	return nil
}

// Demote signs the browser out because the backend rejected token after it
// had been accepted. It does nothing if token is no longer the active token.
func (s *SessionStore) Demote(ctx context.Context, token string) {
	s.mu.Lock()
	if token == "" || s.session.Token != token {
		s.mu.Unlock()
		return
	}
	s.gen++
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clearing demoted token failed", slog.String("error", err.Error()))
	}
	s.logger.Info("session demoted", slog.String("token", auth.Fingerprint(token)))
	s.setLocked(Session{Status: StatusUnauthenticated})
}

// Subscribe registers fn, calls it with the current snapshot and then with
// every later one. The returned func unregisters it.
func (s *SessionStore) Subscribe(fn func(Session)) (unsubscribe func()) {
	// Same lock order as setLocked: mu, then notifyMu.
	s.mu.Lock()
	current := s.session
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	fn(current)

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.observers, id)
	}
}

// Settled waits until the session has left StatusBootstrapping.
func (s *SessionStore) Settled(ctx context.Context) (Session, error) {
	for {
		s.mu.Lock()
		snap, changed := s.session, s.changed
		s.mu.Unlock()

		if snap.Status != StatusBootstrapping {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Wait blocks until background identity checks have finished.
func (s *SessionStore) Wait() {
	s.inflight.Wait()
}

// adoptLocked makes token the active token and returns its generation.
// s.mu must be held; setLocked releases it.
func (s *SessionStore) adoptLocked(token string) uint64 {
	s.gen++
	gen := s.gen
	s.setLocked(Session{Token: token, Status: StatusBootstrapping})
	return gen
}

// setLocked replaces the session, wakes Settled waiters, releases s.mu and
// then notifies observers.
//
// notifyMu is taken before s.mu is released so observers see changes in the
// order they were made.
func (s *SessionStore) setLocked(next Session) {
	s.session = next
	close(s.changed)
	s.changed = make(chan struct{})

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range s.observers {
		fn(next)
	}
}

// startResolve runs the identity check for token in the background. The
// check outlives the request that started it, so it is detached from ctx's
// cancellation and bounded by resolveTimeout instead.
func (s *SessionStore) startResolve(ctx context.Context, token string, gen uint64) {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.resolve(ctx, token, gen)
	}()
}

func (s *SessionStore) resolve(ctx context.Context, token string, gen uint64) {
	v, err, _ := s.flight.Do(token, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
		return s.resolver.CurrentUser(ctx, token)
	})
	user, _ := v.(*model.UserIdentity)
	if err == nil && user == nil {
		err = apperror.Unknown("empty identity response")
	}

	s.mu.Lock()
	if gen != s.gen || s.session.Token != token {
		s.mu.Unlock()
		s.logger.Debug("dropping stale identity result", slog.String("token", auth.Fingerprint(token)))
		return
	}

	if err == nil {
		s.setLocked(Session{Token: token, User: user, Status: StatusAuthenticated})
		s.logger.Info("session authenticated",
			slog.String("login", user.GitHubUsername),
			slog.String("token", auth.Fingerprint(token)),
		)
		return
	}

	s.gen++
	if clearErr := s.store.Clear(ctx); clearErr != nil {
		s.logger.Warn("clearing rejected token failed", slog.String("error", clearErr.Error()))
	}
	next := Session{Status: StatusUnauthenticated}
	if errors.Is(err, apperror.ErrUnreachable) {
		next.Notice = err
	}
	s.setLocked(next)
	s.logger.Info("identity check failed, signed out",
		slog.String("token", auth.Fingerprint(token)),
		slog.String("kind", string(apperror.KindOf(err))),
		slog.String("error", err.Error()),
	)
}
