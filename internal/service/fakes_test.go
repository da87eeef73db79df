package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTokenStore is an in-memory TokenStore for one client.
//
// When loadGate is set, Load reads the token, closes loadStarted and then
// blocks until loadGate is closed, like a slow storage round trip.
type fakeTokenStore struct {
	mu      sync.Mutex
	token   string
	loadErr error
	saveErr error
	clears  int

	loadStarted chan struct{}
	loadGate    chan struct{}
}

func (f *fakeTokenStore) Load(context.Context) (string, error) {
	f.mu.Lock()
	token, err := f.token, f.loadErr
	started, gate := f.loadStarted, f.loadGate
	f.mu.Unlock()

	if gate != nil {
		close(started)
		<-gate
	}
	return token, err
}

func (f *fakeTokenStore) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.token = token
	return nil
}

func (f *fakeTokenStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.clears++
	return nil
}

func (f *fakeTokenStore) stored() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

// fakeBackend answers from maps and records every call. A token or username
// with an entry in gates blocks until that channel is closed, which lets
// tests control the order responses arrive in.
type fakeBackend struct {
	mu sync.Mutex

	users      map[string]*model.UserIdentity // by token
	userErrs   map[string]error               // by token
	own        map[string]*model.ProfileView  // by token
	ownErrs    map[string]error               // by token
	public     map[string]*model.ProfileView  // by username
	publicErr  map[string]error               // by username
	updateErr  error
	refreshErr error
	gates      map[string]chan struct{}

	calls   []string
	patches []model.ProfilePatch
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:     make(map[string]*model.UserIdentity),
		userErrs:  make(map[string]error),
		own:       make(map[string]*model.ProfileView),
		ownErrs:   make(map[string]error),
		public:    make(map[string]*model.ProfileView),
		publicErr: make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	gate := f.gates[key]
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return apperror.Unreachable(ctx.Err().Error())
	}
}

func (f *fakeBackend) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeBackend) CurrentUser(ctx context.Context, token string) (*model.UserIdentity, error) {
	f.record("me:" + token)
	if err := f.wait(ctx, token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.userErrs[token]; err != nil {
		return nil, err
	}
	u, ok := f.users[token]
	if !ok {
		return nil, apperror.Unauthorized("Unauthenticated.")
	}
	return u, nil
}

func (f *fakeBackend) OwnProfile(ctx context.Context, token string) (*model.ProfileView, error) {
	f.record("profile:" + token)
	if err := f.wait(ctx, "profile:"+token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ownErrs[token]; err != nil {
		return nil, err
	}
	v, ok := f.own[token]
	if !ok {
		return nil, apperror.Unauthorized("Unauthenticated.")
	}
	return v, nil
}

func (f *fakeBackend) PublicProfile(ctx context.Context, username string) (*model.ProfileView, error) {
	f.record("profiles:" + username)
	if err := f.wait(ctx, username); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.publicErr[username]; err != nil {
		return nil, err
	}
	v, ok := f.public[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	return v, nil
}

// UpdateProfile applies the patch to the stored own profile, the way the
// backend would, so a later OwnProfile shows it.
func (f *fakeBackend) UpdateProfile(_ context.Context, token string, patch model.ProfilePatch) error {
	f.record("patch:" + token)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	if f.updateErr != nil {
		return f.updateErr
	}
	v, ok := f.own[token]
	if !ok {
		return apperror.Unauthorized("Unauthenticated.")
	}
	cp := *v
	if patch.Bio != nil {
		cp.Profile.Bio = *patch.Bio
	}
	if patch.Status != nil {
		cp.Profile.Status = *patch.Status
	}
	if patch.Theme != nil {
		cp.Profile.Theme = *patch.Theme
	}
	if patch.Public != nil {
		public := *patch.Public
		cp.Profile.Public = &public
	}
	f.own[token] = &cp
	return nil
}

func (f *fakeBackend) RefreshStats(_ context.Context, token string) error {
	f.record("refresh:" + token)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshErr
}

func (f *fakeBackend) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testUser(login string) *model.UserIdentity {
	return &model.UserIdentity{ID: 1, DisplayName: login, GitHubUsername: login}
}

func testView(login string) *model.ProfileView {
	return &model.ProfileView{User: *testUser(login)}
}

// settled waits for the session with a deadline so a bug fails the test
// instead of hanging it.
func settled(t *testing.T, s *SessionStore) Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.Settled(ctx)
	if err != nil {
		t.Fatalf("Settled() error = %v (status %s)", err, snap.Status)
	}
	return snap
}
