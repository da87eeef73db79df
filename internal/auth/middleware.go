package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"
)

// ClientCookieName is the HttpOnly cookie that carries the signed client id.
const ClientCookieName = "devfolio_client"

// renewAfter is how old a client cookie may get before it is re-issued with
// the same id, so an active browser never hits ClientTokenLifetime.
const renewAfter = 7 * 24 * time.Hour

// contextKey is an unexported type so no other package can read or shadow
// values stored under it.
type contextKey string

const clientIDKey contextKey = "clientID"

// ClientCookie is a middleware that guarantees every request has a client id.
//
// FLOW:
//  1. Read the devfolio_client cookie and verify its signature.
//  2. Missing, expired or forged → mint a new xid and set a fresh cookie.
//     (A forged cookie never yields someone else's session; it just starts a
//     new, empty one.)
//  3. Valid but older than renewAfter → re-issue for the same id.
//  4. Store the id in the request context for ClientIDFromContext.
func ClientCookie(tokens *TokenService, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, issuedAt, err := readClientCookie(r, tokens)
			switch {
			case err != nil:
				clientID = xid.New().String()
				issue(w, tokens, clientID, secure, logger)
			case time.Since(issuedAt) > renewAfter:
				issue(w, tokens, clientID, secure, logger)
			}

			next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), clientID)))
		})
	}
}

// WithClientID returns ctx carrying clientID. Exposed for handler tests.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientIDFromContext returns the client id set by ClientCookie.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDKey).(string)
	return id, ok && id != ""
}

func readClientCookie(r *http.Request, tokens *TokenService) (string, time.Time, error) {
	cookie, err := r.Cookie(ClientCookieName)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokens.Validate(cookie.Value)
}

func issue(w http.ResponseWriter, tokens *TokenService, clientID string, secure bool, logger *slog.Logger) {
	signed, err := tokens.Generate(clientID)
	if err != nil {
		// The request still proceeds with an in-memory id; the browser just
		// won't keep it.
		logger.Error("issuing client cookie failed", slog.String("error", err.Error()))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(ClientTokenLifetime.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
