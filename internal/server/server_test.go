package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/config"
)

func newTestServer(t *testing.T, backend http.Handler) *Server {
	t.Helper()
	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	keys, err := auth.DeriveKeys("server-test-secret-0123456789")
	require.NoError(t, err)

	cfg := config.Config{
		Port:           0,
		APIURL:         api.URL + "/api",
		APITimeout:     5 * time.Second,
		DBPath:         ":memory:",
		TokenStore:     config.TokenStoreSQLite,
		RefreshDelay:   time.Hour,
		ResolveTimeout: 5 * time.Second,
		ClientIdleTTL:  time.Hour,
		ClientMax:      10,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := New(context.Background(), cfg, keys, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func meBackend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/auth/me" && r.Header.Get("Authorization") == "Bearer tok-1":
		io.WriteString(w, `{"data": {"id": 1, "name": "Ada", "github_username": "ada"}}`)
	default:
		w.WriteHeader(http.StatusUnauthorized)
	}
}

func TestHealthz_CreatesNoClient(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(meBackend))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
	assert.Equal(t, 0, s.Registry().Len())
}

func TestStatic(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(meBackend))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/css")
}

// A browser keeps its session across requests through the client cookie,
// and the token survives in the sealed store when the in-memory client is
// evicted.
func TestSessionSurvivesAcrossRequests(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(meBackend))
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/oauth/callback?token=tok-1&provider=github", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/dashboard", rr.Header().Get("Location"))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.ClientCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// Forget every in-memory client; the next request must bootstrap from
	// the stored token.
	s.Registry().Close()
	require.Equal(t, 0, s.Registry().Len())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
}

func TestUnknownCookieStartsFreshClient(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(meBackend))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.ClientCookieName, Value: "forged"})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rr.Result().Cookies(), 1)
	assert.NotEqual(t, "forged", rr.Result().Cookies()[0].Value)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, http.HandlerFunc(meBackend))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/a/b/c", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Page Not Found")
}
