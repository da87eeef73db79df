package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/model"
)

// ProfileBackend is the part of the backend API the loader uses.
type ProfileBackend interface {
	OwnProfile(ctx context.Context, token string) (*model.ProfileView, error)
	PublicProfile(ctx context.Context, username string) (*model.ProfileView, error)
	UpdateProfile(ctx context.Context, token string, patch model.ProfilePatch) error
	RefreshStats(ctx context.Context, token string) error
}

// Demoter is told when the backend rejects a token that used to work.
// *SessionStore implements it.
type Demoter interface {
	Demote(ctx context.Context, token string)
}

// ProfileState is the state of a profile fetch.
type ProfileState = RequestState[*model.ProfileView]

// DefaultRefreshDelay is how long Refresh waits before re-reading the own
// profile. The backend recomputes statistics asynchronously.
const DefaultRefreshDelay = 2 * time.Second

// githubLogin matches what GitHub accepts as a username: 1 to 39
// alphanumerics or single hyphens, not starting or ending with a hyphen.
var githubLogin = regexp.MustCompile(`^[A-Za-z0-9](?:-?[A-Za-z0-9]){0,38}$`)

// ValidUsername reports whether name could be a GitHub login.
func ValidUsername(name string) bool {
	return githubLogin.MatchString(name)
}

// ProfileLoader fetches profile pages for one browser and keeps the latest
// RequestState of each:
//
//   - own:    the signed-in user's profile (dashboard)
//   - public: the last public profile looked at (/{username})
//
// Each slot drops stale responses; see Slot.
//
// NO RETRIES:
// Every fetch is a single attempt. The user decides whether to try again.
type ProfileLoader struct {
	backend      ProfileBackend
	session      Demoter
	logger       *slog.Logger
	refreshDelay time.Duration

	own    Slot[*model.ProfileView]
	public Slot[*model.ProfileView]

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func NewProfileLoader(backend ProfileBackend, session Demoter, refreshDelay time.Duration, logger *slog.Logger) *ProfileLoader {
	if refreshDelay <= 0 {
		refreshDelay = DefaultRefreshDelay
	}
	return &ProfileLoader{
		backend:      backend,
		session:      session,
		logger:       logger,
		refreshDelay: refreshDelay,
		timers:       make(map[*time.Timer]struct{}),
	}
}

// OwnState returns the state of the own-profile slot.
func (l *ProfileLoader) OwnState() ProfileState { return l.own.State() }

// PublicState returns the state of the public-profile slot.
func (l *ProfileLoader) PublicState() ProfileState { return l.public.State() }

// LoadOwnProfile fetches the profile of the account behind token.
//
// A 401 or 403 means the token stopped working after sign-in: the session is
// demoted and the slot fails with Unauthorized, which pages treat as "go to
// the landing page" rather than as an error banner.
//
// The returned state is the outcome of this fetch. Each caller gets what it
// asked for; if a newer fetch began meanwhile, the slot keeps that one's state
// and this result is only returned, never stored.
func (l *ProfileLoader) LoadOwnProfile(ctx context.Context, token string) ProfileState {
	key := auth.Fingerprint(token)
	id := l.own.Begin(key)
	if token == "" {
		err := apperror.Unauthorized("not signed in")
		l.own.Settle(id, nil, err)
		return Outcome[*model.ProfileView](key, id, nil, err)
	}

	view, err := l.backend.OwnProfile(ctx, token)
	if err != nil && isCredentialRejection(err) {
		l.session.Demote(ctx, token)
		err = apperror.Unauthorized("your session has expired, please sign in again")
	}
	if !l.own.Settle(id, view, err) {
		l.logger.Debug("dropping stale own profile response", slog.Uint64("request_id", id))
	}
	return Outcome(key, id, view, err)
}

// LoadPublicProfile fetches the public profile of username. No credential
// is sent.
//
// Failures are reported as NotFound (404 or a name GitHub would not allow),
// PrivateProfile (403), Unreachable, or Unknown with the backend's message.
//
// Like LoadOwnProfile, the returned state is always this fetch's own: two
// pages loading different profiles at once each get their own username.
func (l *ProfileLoader) LoadPublicProfile(ctx context.Context, username string) ProfileState {
	id := l.public.Begin(username)
	if !ValidUsername(username) {
		err := apperror.NotFound("profile", username)
		l.public.Settle(id, nil, err)
		return Outcome[*model.ProfileView](username, id, nil, err)
	}

	view, err := l.backend.PublicProfile(ctx, username)
	if err != nil {
		err = publicProfileError(username, err)
	}
	if !l.public.Settle(id, view, err) {
		l.logger.Debug("dropping stale public profile response",
			slog.String("username", username),
			slog.Uint64("request_id", id),
		)
	}
	return Outcome(username, id, view, err)
}

func publicProfileError(username string, err error) error {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound, apperror.KindUnreachable, apperror.KindPrivateProfile:
		return err
	case apperror.KindForbidden:
		return apperror.PrivateProfile(username)
	default:
		return apperror.Unknown(err.Error())
	}
}

// Refresh asks the backend to recompute the GitHub statistics and schedules
// a re-read of the own profile after the refresh delay. The re-read is best
// effort: the backend may not be done by then.
func (l *ProfileLoader) Refresh(ctx context.Context, token string) error {
	if token == "" {
		return apperror.Unauthorized("not signed in")
	}
	if err := l.backend.RefreshStats(ctx, token); err != nil {
		if isCredentialRejection(err) {
			l.session.Demote(ctx, token)
			return apperror.Unauthorized("your session has expired, please sign in again")
		}
		return fmt.Errorf("service/profile: refreshing stats: %w", err)
	}

	l.afterDelay(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		l.LoadOwnProfile(ctx, token)
	})
	return nil
}

// UpdateProfile validates patch, sends it and then re-reads the own profile.
// The page shows what the backend stored, never a local merge of the patch.
//
// A rejected patch (local validation or 422) returns an ErrValidation error
// and leaves the slot as it was.
func (l *ProfileLoader) UpdateProfile(ctx context.Context, token string, patch model.ProfilePatch) (ProfileState, error) {
	if token == "" {
		return l.own.State(), apperror.Unauthorized("not signed in")
	}
	if err := patch.Validate(); err != nil {
		return l.own.State(), err
	}
	if err := l.backend.UpdateProfile(ctx, token, patch); err != nil {
		if isCredentialRejection(err) {
			l.session.Demote(ctx, token)
			return l.own.State(), apperror.Unauthorized("your session has expired, please sign in again")
		}
		return l.own.State(), fmt.Errorf("service/profile: updating profile: %w", err)
	}
	return l.LoadOwnProfile(ctx, token), nil
}

// StopRefreshes cancels pending Refresh re-reads.
func (l *ProfileLoader) StopRefreshes() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for t := range l.timers {
		t.Stop()
		delete(l.timers, t)
	}
}

// Reset cancels pending re-reads and empties both slots.
func (l *ProfileLoader) Reset() {
	l.StopRefreshes()
	l.own.Reset()
	l.public.Reset()
}

// Close stops pending re-reads for good. Refresh still works afterwards but
// no longer schedules anything.
func (l *ProfileLoader) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.StopRefreshes()
}

func (l *ProfileLoader) afterDelay(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(l.refreshDelay, func() {
		l.mu.Lock()
		_, pending := l.timers[t]
		delete(l.timers, t)
		l.mu.Unlock()
		if pending {
			fn()
		}
	})
	l.timers[t] = struct{}{}
}

func isCredentialRejection(err error) bool {
	return errors.Is(err, apperror.ErrUnauthorized) || errors.Is(err, apperror.ErrForbidden)
}
