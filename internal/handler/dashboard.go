package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/model"
	"github.com/sakif/devfolio-web/internal/service"
	"github.com/sakif/devfolio-web/internal/view"
)

// maxFormSize caps the profile form body.
const maxFormSize = 64 << 10

// Notices the dashboard shows after a redirect. Only these fixed codes are
// accepted from the query string; free text from a URL is never rendered.
var dashboardNotices = map[string]string{
	"refreshing": "Refreshing GitHub stats. New numbers appear in a moment.",
}

// DashboardHandler serves the signed-in user's own pages. Every route is
// behind RequireSession.
type DashboardHandler struct {
	logger *slog.Logger
}

func NewDashboardHandler(logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{logger: logger}
}

// HandleShow renders the dashboard with a fresh copy of the own profile.
//
// HTTP: GET /dashboard
//
// If the backend rejects the token the session has been demoted by the
// loader and the browser goes back to the landing page.
func (h *DashboardHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	c := ClientFrom(r.Context())
	snap := c.Session.Snapshot()
	state := c.Profiles.LoadOwnProfile(r.Context(), snap.Token)

	page := dashboardPage(snap, state)
	if code := r.URL.Query().Get("notice"); code != "" {
		page.Flash = dashboardNotices[code]
	}
	h.respond(w, r, state, page)
}

// HandleState reports the own-profile request state as JSON, for scripts
// and for debugging a dashboard that looks stuck.
//
// HTTP: GET /dashboard/state
//
// It does not start a fetch.
func (h *DashboardHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	c := ClientFrom(r.Context())
	writeJSON(w, http.StatusOK, stateResponse(c.Profiles.OwnState()))
}

// HandleUpdate applies the profile form.
//
// HTTP: POST /dashboard/profile
//
// On success the page shows the profile as re-read from the backend. A
// rejected form (422) re-renders the dashboard with the message; nothing
// the user typed is shown as saved.
func (h *DashboardHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	c := ClientFrom(r.Context())
	snap := c.Session.Snapshot()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		h.respondFlash(w, r, c, snap, http.StatusBadRequest, "Could not read the form")
		return
	}

	state, err := c.Profiles.UpdateProfile(r.Context(), snap.Token, patchFromForm(r))
	if err != nil {
		kind := apperror.KindOf(err)
		if kind == apperror.KindUnauthorized {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		h.logger.Info("profile update rejected",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		h.respondFlash(w, r, c, snap, statusFor(kind), updateFailure(err))
		return
	}

	page := dashboardPage(snap, state)
	page.Flash = "Profile updated successfully"
	h.respond(w, r, state, page)
}

// HandleRefresh asks the backend to recompute the GitHub statistics.
//
// HTTP: POST /dashboard/refresh
//
// The profile is re-read in the background after a short delay; the browser
// is sent back to the dashboard right away.
func (h *DashboardHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	c := ClientFrom(r.Context())
	snap := c.Session.Snapshot()

	if err := c.Profiles.Refresh(r.Context(), snap.Token); err != nil {
		kind := apperror.KindOf(err)
		if kind == apperror.KindUnauthorized {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		h.logger.Warn("stats refresh failed", slog.String("error", err.Error()))
		h.respondFlash(w, r, c, snap, statusFor(kind), "Failed to refresh stats")
		return
	}
	http.Redirect(w, r, "/dashboard?notice=refreshing", http.StatusSeeOther)
}

// respond renders page, or redirects home when the profile fetch found the
// session expired.
func (h *DashboardHandler) respond(w http.ResponseWriter, r *http.Request, state service.ProfileState, page view.DashboardPage) {
	if state.Kind() == apperror.KindUnauthorized {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	render(w, r, statusFor(state.Kind()), view.Dashboard(page))
}

// respondFlash re-renders the dashboard from the last loaded profile with an
// error message on top.
func (h *DashboardHandler) respondFlash(w http.ResponseWriter, r *http.Request, c *service.Client, snap service.Session, status int, msg string) {
	page := dashboardPage(snap, c.Profiles.OwnState())
	page.Flash = msg
	page.FlashError = true
	render(w, r, status, view.Dashboard(page))
}

func dashboardPage(snap service.Session, state service.ProfileState) view.DashboardPage {
	page := view.DashboardPage{
		User:    snap.User,
		Loading: state.Phase == service.PhaseLoading,
		View:    state.Data,
	}
	if state.Phase == service.PhaseFailed {
		page.ErrKind = state.Kind()
		page.ErrMsg = state.Err.Error()
	}
	return page
}

func updateFailure(err error) string {
	var appErr *apperror.AppError
	if apperror.KindOf(err) == apperror.KindValidation && errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "Failed to update profile"
}

// patchFromForm builds a patch from the fields present in the form. Absent
// fields stay nil and are not sent. public is a hidden "false" followed by a
// checkbox "true", so the last value wins.
func patchFromForm(r *http.Request) model.ProfilePatch {
	var p model.ProfilePatch
	text := func(name string) *string {
		if !r.PostForm.Has(name) {
			return nil
		}
		v := strings.TrimSpace(r.PostForm.Get(name))
		return &v
	}
	p.Bio = text("bio")
	p.Theme = text("theme")
	p.Status = text("status")
	p.Location = text("location")
	p.Website = text("website")
	p.Twitter = text("twitter")
	p.LinkedIn = text("linkedin")

	if vals := r.PostForm["public"]; len(vals) > 0 {
		public := vals[len(vals)-1] == "true"
		p.Public = &public
	}
	return p
}

// stateJSON is the wire shape of a request state.
type stateJSON struct {
	Phase     service.Phase      `json:"phase"`
	RequestID uint64             `json:"request_id"`
	Data      *model.ProfileView `json:"data,omitempty"`
	Error     *ErrorResponse     `json:"error,omitempty"`
}

func stateResponse(state service.ProfileState) stateJSON {
	out := stateJSON{
		Phase:     state.Phase,
		RequestID: state.RequestID,
		Data:      state.Data,
	}
	if state.Err != nil {
		out.Error = &ErrorResponse{
			Error:   string(state.Kind()),
			Message: state.Err.Error(),
		}
	}
	return out
}
