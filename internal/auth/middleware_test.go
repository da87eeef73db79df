package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func runClientCookie(t *testing.T, ts *TokenService, cookie *http.Cookie) (string, *httptest.ResponseRecorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen string
	h := ClientCookie(ts, false, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := ClientIDFromContext(r.Context())
		if !ok {
			t.Fatal("ClientIDFromContext() found no id")
		}
		seen = id
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return seen, rr
}

func issuedCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == ClientCookieName {
			return c
		}
	}
	return nil
}

func TestClientCookie_NewBrowserGetsCookie(t *testing.T) {
	ts := newTestTokenService(t)

	id, rr := runClientCookie(t, ts, nil)
	c := issuedCookie(rr)
	if c == nil {
		t.Fatal("expected a client cookie to be set")
	}
	if !c.HttpOnly {
		t.Error("client cookie must be HttpOnly")
	}
	got, _, err := ts.Validate(c.Value)
	if err != nil {
		t.Fatalf("issued cookie does not validate: %v", err)
	}
	if got != id {
		t.Errorf("cookie client id = %q, context id = %q", got, id)
	}
}

func TestClientCookie_ValidCookieKeepsID(t *testing.T) {
	ts := newTestTokenService(t)
	signed, _ := ts.Generate("client-abc")

	id, rr := runClientCookie(t, ts, &http.Cookie{Name: ClientCookieName, Value: signed})
	if id != "client-abc" {
		t.Errorf("client id = %q, want %q", id, "client-abc")
	}
	if issuedCookie(rr) != nil {
		t.Error("a fresh valid cookie should not be re-issued")
	}
}

func TestClientCookie_ForgedCookieStartsNewClient(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("another-secret-at-least-16-chars")
	forged, _ := other.Generate("victim-client")

	id, rr := runClientCookie(t, ts, &http.Cookie{Name: ClientCookieName, Value: forged})
	if id == "victim-client" {
		t.Fatal("forged cookie must not be trusted")
	}
	if issuedCookie(rr) == nil {
		t.Error("expected a replacement cookie")
	}
}

func TestClientCookie_OldCookieIsRenewed(t *testing.T) {
	ts := newTestTokenService(t)
	signed := oldToken(t, ts, "client-old", 8*24*time.Hour)

	id, rr := runClientCookie(t, ts, &http.Cookie{Name: ClientCookieName, Value: signed})
	if id != "client-old" {
		t.Errorf("client id = %q, want %q", id, "client-old")
	}
	if issuedCookie(rr) == nil {
		t.Error("expected the old cookie to be renewed")
	}
}

// oldToken signs a still-valid client token whose IssuedAt lies age in the past.
func oldToken(t *testing.T, ts *TokenService, clientID string, age time.Duration) string {
	t.Helper()
	now := time.Now()
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-age)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		Issuer:    issuer,
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(ts.secret)
	if err != nil {
		t.Fatalf("signing old token: %v", err)
	}
	return signed
}
