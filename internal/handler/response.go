package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// WHY HELPERS?
// Without helpers, every handler repeats the same boilerplate:
//   w.Header().Set("Content-Type", "application/json")
//   w.WriteHeader(statusCode)
//   json.NewEncoder(w).Encode(data)
//
// With helpers, handlers are cleaner and more consistent:
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every JSON error response has the same shape:
//   {"error": "not_found", "message": "Developer profile not found"}
//
// "error" is an apperror.Kind, so a script polling /dashboard/state can
// branch on it without parsing messages.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/sakif/devfolio-web/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
// Having a struct ensures consistent JSON shape across all error responses.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
// Any header changes after that are silently ignored.
//
// That's why we do:
//  1. w.Header().Set(...)     ← set headers
//  2. w.WriteHeader(status)   ← send status + headers
//  3. json.Encode(data)       ← send body
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// If encoding fails, the headers are already sent, so we can only log it.
			// This is rare (usually means the data has an unencodable type like a channel).
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error category to the HTTP status of the page or JSON
// response that reports it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. The backend's
// own statuses were already translated into categories by internal/api;
// this is the translation back out, for our own responses.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNone:
		return http.StatusOK
	case apperror.KindValidation:
		return http.StatusUnprocessableEntity // 422
	case apperror.KindNotFound:
		return http.StatusNotFound // 404
	case apperror.KindPrivateProfile, apperror.KindForbidden:
		return http.StatusForbidden // 403
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized // 401
	case apperror.KindUnreachable:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as an ErrorResponse.
//
// errors.As() UNWRAPPING:
// errors.As walks the entire error chain (via Unwrap()) and fills appErr if
// it finds an *AppError, so this works for errors the service wrapped with
// fmt.Errorf("...: %w", err) too.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Unknown error: NEVER expose internal details (file paths, SQL) to
		// the client.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   string(apperror.KindUnknown),
			Message: "An internal error occurred",
		})
		return
	}

	kind := apperror.KindOf(appErr)
	writeJSON(w, statusFor(kind), ErrorResponse{
		Error:   string(kind),
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// render serves a page with the given status code.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	templ.Handler(c, templ.WithStatus(status)).ServeHTTP(w, r)
}
