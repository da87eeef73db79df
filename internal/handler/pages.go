package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/service"
	"github.com/sakif/devfolio-web/internal/view"
)

// PageHandler serves the pages anyone can open: the landing page and
// public profiles.
type PageHandler struct {
	backend       LoginBackend
	settleTimeout time.Duration
	logger        *slog.Logger
}

func NewPageHandler(backend LoginBackend, settleTimeout time.Duration, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		backend:       backend,
		settleTimeout: settleTimeout,
		logger:        logger,
	}
}

// HandleLanding renders the landing page, or sends a signed-in browser to
// its dashboard.
//
// HTTP: GET /
//
// When the backend URL is not configured the sign-in buttons are disabled
// and a banner says which variable to set.
func (h *PageHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	page := view.LandingPage{Configured: h.backend.Configured()}

	if c := ClientFrom(r.Context()); c != nil {
		snap, err := settle(r.Context(), c, h.settleTimeout)
		if err == nil && snap.Authenticated() {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		if snap.Notice != nil {
			page.Notice = snap.Notice.Error()
		}
	}

	render(w, r, http.StatusOK, view.Landing(page))
}

// HandlePublicProfile renders the public profile of a user.
//
// HTTP: GET /{username}
//
// No credential is sent to the backend, even for a signed-in browser
// looking at its own page. The status code follows the outcome: 404 for an
// unknown user, 403 for a private profile, 502 when the backend is down.
func (h *PageHandler) HandlePublicProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	c := ClientFrom(r.Context())

	state := c.Profiles.LoadPublicProfile(r.Context(), username)
	page := view.ProfilePage{
		Username: username,
		Loading:  state.Phase == service.PhaseLoading,
		View:     state.Data,
	}
	if state.Phase == service.PhaseFailed {
		page.ErrKind = state.Kind()
		page.ErrMsg = state.Err.Error()
		if page.ErrKind == apperror.KindUnknown || page.ErrKind == apperror.KindUnreachable {
			h.logger.Warn("public profile fetch failed",
				slog.String("username", username),
				slog.String("error", page.ErrMsg),
			)
		}
	}

	render(w, r, statusFor(state.Kind()), view.Profile(page))
}

// HandleNotFound renders the 404 page for paths no route matches.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusNotFound, view.ErrorPage("Page Not Found", "There is nothing at this address."))
}

// HealthSource is what /healthz reports on.
type HealthSource interface {
	Stats() service.RegistryStats
}

// Pinger checks that the backend answers. *api.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /healthz.
type HealthHandler struct {
	clients HealthSource
	backend Pinger
	apiURL  string
}

func NewHealthHandler(clients HealthSource, backend Pinger, apiURL string) *HealthHandler {
	return &HealthHandler{clients: clients, backend: backend, apiURL: apiURL}
}

type healthResponse struct {
	Status  string                `json:"status"`
	APIURL  string                `json:"api_url"`
	Backend string                `json:"backend,omitempty"`
	Clients service.RegistryStats `json:"clients"`
}

// HandleHealth reports liveness and client registry counters.
//
// HTTP: GET /healthz[?deep=1]
//
// With deep=1 the backend is pinged too and an unreachable backend turns
// the answer into a 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		APIURL:  h.apiURL,
		Clients: h.clients.Stats(),
	}
	status := http.StatusOK

	if r.URL.Query().Get("deep") == "1" {
		if err := h.backend.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Backend = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Backend = "ok"
		}
	}
	writeJSON(w, status, resp)
}
