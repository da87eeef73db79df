package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/service"
	"github.com/sakif/devfolio-web/internal/view"
)

// ClientSource finds the state of the browser making a request.
// *service.ClientRegistry implements it.
type ClientSource interface {
	Get(clientID string) *service.Client
}

type clientKey struct{}

// WithClient stores c in ctx. Exported for tests.
func WithClient(ctx context.Context, c *service.Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the Client stored by AttachClient, or nil.
func ClientFrom(ctx context.Context) *service.Client {
	c, _ := ctx.Value(clientKey{}).(*service.Client)
	return c
}

// AttachClient looks up the Client of the browser identified by
// auth.ClientCookie and stores it in the request context.
//
// MIDDLEWARE ORDER:
//
//	auth.ClientCookie → AttachClient → Bootstrap → handler
//
// ClientCookie must run first; without a client id there is nothing to
// look up, which is a wiring bug and answered with a 500.
func AttachClient(clients ClientSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.ClientIDFromContext(r.Context())
			if !ok {
				logger.Error("request reached AttachClient without a client id", slog.String("path", r.URL.Path))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			c := clients.Get(id)
			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), c)))
		})
	}
}

// Bootstrap hands every navigation URL to the browser's SessionStore.
//
// If the URL carried a token it is adopted and the browser is redirected
// (303) to the same URL without token and provider, so the credential does
// not stay in history, bookmarks or the Referer of outgoing links.
//
// The OAuth callback route does not use this middleware; it handles the
// same parameters itself so it can report failures.
func Bootstrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ClientFrom(r.Context())
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		clean, stripped := c.Session.Bootstrap(r.Context(), r.URL)
		if stripped {
			noStore(w)
			http.Redirect(w, r, clean.RequestURI(), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession sends browsers without a verified session to the landing
// page, and answers 401 JSON to clients that asked for JSON. It waits for a
// pending identity check first, so a fresh sign-in is not bounced while the
// backend is still answering.
func RequireSession(settleTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := ClientFrom(r.Context())
			if c == nil {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			snap, err := settle(r.Context(), c, settleTimeout)
			if err != nil {
				render(w, r, http.StatusServiceUnavailable,
					view.ErrorPage("Still Signing In", "Checking your session is taking longer than expected. Please reload the page."))
				return
			}
			if !snap.Authenticated() {
				if wantsJSON(r) {
					writeError(w, apperror.Unauthorized("not signed in"))
					return
				}
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// settle waits for the browser's session to leave StatusBootstrapping,
// bounded by timeout (0 means only by ctx).
func settle(ctx context.Context, c *service.Client, timeout time.Duration) (service.Session, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Session.Settled(ctx)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// noStore keeps responses that carry or consume a token out of caches.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
}
