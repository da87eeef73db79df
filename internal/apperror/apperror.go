// Package apperror defines the error taxonomy shared by the API client, the
// session/profile services and the HTTP handlers.
//
// SENTINELS + WRAPPER:
// Every failure that reaches a page is an *AppError whose Err field is one of
// the sentinels below. Callers test the category with errors.Is and read the
// human-readable text from Message:
//
//	var appErr *apperror.AppError
//	if errors.As(err, &appErr) && errors.Is(err, apperror.ErrNotFound) { ... }
//
// The backend's HTTP status codes are translated into these categories in
// exactly one place (internal/api), so nothing above that layer ever looks at
// a raw status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrPrivateProfile = errors.New("private profile")
	ErrUnreachable    = errors.New("backend unreachable")
	ErrUnknown        = errors.New("unknown error")
)

// Kind is the machine-readable name of an error category. Views and JSON
// responses use it instead of the sentinel itself.
type Kind string

const (
	KindNone           Kind = ""
	KindNotFound       Kind = "not_found"
	KindPrivateProfile Kind = "private_profile"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindUnreachable    Kind = "unreachable"
	KindValidation     Kind = "validation_error"
	KindUnknown        Kind = "unknown"
)

type AppError struct {
	Err     error  // sentinel category
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf returns the category of err. Errors that did not come through this
// package are reported as KindUnknown; a nil error is KindNone.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPrivateProfile):
		return KindPrivateProfile
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindUnknown
	}
}

// From returns err as an *AppError, wrapping foreign errors as Unknown so a
// page always has a message to show.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Unknown(err.Error())
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized marks a credential the backend refused. The session service
// treats it as "not logged in" rather than as a page error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func PrivateProfile(username string) *AppError {
	return &AppError{
		Err:     ErrPrivateProfile,
		Message: "This profile is private",
		Field:   username,
	}
}

// Unreachable means no HTTP response came back at all: the backend is down,
// misconfigured or blocked.
func Unreachable(message string) *AppError {
	return &AppError{
		Err:     ErrUnreachable,
		Message: message,
	}
}

func Unknown(message string) *AppError {
	if message == "" {
		message = "API request failed"
	}
	return &AppError{
		Err:     ErrUnknown,
		Message: message,
	}
}
