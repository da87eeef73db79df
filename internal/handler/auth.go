package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/service"
	"github.com/sakif/devfolio-web/internal/view"
)

// LoginBackend is the part of the backend API the sign-in flow needs.
// *api.Client implements it.
type LoginBackend interface {
	Configured() bool
	GitHubRedirectURL(ctx context.Context) (string, error)
}

// AuthHandler manages sign-in and sign-out.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → ask the backend for GitHub's authorize URL and redirect there
//   - HandleGitHubCallback → adopt the token the backend sends back, verify it, go to /dashboard
//   - HandleLogout         → forget the token
//
// WHO TALKS TO GITHUB?
// The backend does. It owns the OAuth app, exchanges the code and mints the
// bearer token; this server only ever sees the finished token, delivered as
// ?token=...&provider=github on the callback URL.
type AuthHandler struct {
	backend       LoginBackend
	settleTimeout time.Duration
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. settleTimeout bounds how long the
// callback waits for the identity check before giving up.
func NewAuthHandler(backend LoginBackend, settleTimeout time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		backend:       backend,
		settleTimeout: settleTimeout,
		logger:        logger,
	}
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The URL comes from the backend and is checked with
// auth.ValidateAuthorizeURL before use, so a misconfigured or compromised
// backend cannot turn this route into an open redirect.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if !h.backend.Configured() {
		render(w, r, http.StatusServiceUnavailable, view.Landing(view.LandingPage{Configured: false}))
		return
	}

	target, err := h.backend.GitHubRedirectURL(r.Context())
	if err != nil {
		h.logger.Warn("fetching GitHub redirect URL failed",
			slog.String("kind", string(apperror.KindOf(err))),
			slog.String("error", err.Error()),
		)
		render(w, r, statusFor(apperror.KindOf(err)), view.Landing(view.LandingPage{
			Configured: true,
			Error:      signInFailure(err),
		}))
		return
	}
	if err := auth.ValidateAuthorizeURL(target); err != nil {
		h.logger.Error("backend returned an unexpected authorize URL", slog.String("error", err.Error()))
		render(w, r, http.StatusBadGateway, view.Landing(view.LandingPage{
			Configured: true,
			Error:      "Failed to initiate GitHub login",
		}))
		return
	}

	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// signInFailure is the message shown when sign-in cannot be started.
func signInFailure(err error) string {
	if apperror.KindOf(err) == apperror.KindUnreachable {
		return err.Error()
	}
	return "Failed to initiate GitHub login"
}

// HandleGitHubCallback completes sign-in.
//
// HTTP: GET /oauth/callback?token=...&provider=github
//
// FLOW:
//  1. ?error=... → the backend reported a failed OAuth exchange; show it
//  2. token or provider missing, or not a GitHub token → error page
//  3. SessionStore.Login persists and adopts the token
//  4. wait for the identity check; success → 303 to /dashboard
//
// The response is never cached and sends no Referer, because the request
// URL carries the token.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	c := ClientFrom(r.Context())
	q := r.URL.Query()

	if msg := q.Get(service.ErrorParam); msg != "" {
		h.logger.Info("OAuth callback reported an error", slog.String("error", msg))
		render(w, r, http.StatusBadRequest, view.ErrorPage("Authentication Error", msg))
		return
	}

	token, provider := q.Get(service.TokenParam), q.Get(service.ProviderParam)
	if token == "" || provider == "" {
		render(w, r, http.StatusBadRequest, view.ErrorPage("Authentication Error", "Missing authentication parameters"))
		return
	}
	if provider != service.ProviderGitHub || !service.WellFormedToken(token) {
		h.logger.Warn("OAuth callback with invalid parameters",
			slog.String("provider", provider),
			slog.Int("length", len(token)),
		)
		render(w, r, http.StatusBadRequest, view.ErrorPage("Authentication Error", "Invalid authentication parameters"))
		return
	}

	if err := c.Session.Login(r.Context(), token); err != nil {
		h.logger.Error("storing session token failed", slog.String("error", err.Error()))
		render(w, r, http.StatusInternalServerError, view.ErrorPage("Authentication Error", "Could not save your session. Please try again."))
		return
	}

	snap, err := settle(r.Context(), c, h.settleTimeout)
	if err != nil {
		render(w, r, http.StatusGatewayTimeout, view.ErrorPage("Authentication Error", "Verifying your account took too long. Please try again."))
		return
	}
	if !snap.Authenticated() {
		msg := "Sign-in could not be verified. Please try again."
		if snap.Notice != nil {
			msg = snap.Notice.Error()
		}
		render(w, r, http.StatusUnauthorized, view.ErrorPage("Authentication Error", msg))
		return
	}

	h.logger.Info("user signed in", slog.String("username", snap.User.GitHubUsername))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout signs the browser out.
//
// HTTP: POST /logout
//
// The backend is not told; its token simply stops being used. Profile data
// loaded for this browser is dropped with the session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	c := ClientFrom(r.Context())
	if err := c.Logout(r.Context()); err != nil {
		h.logger.Warn("clearing stored token failed", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
