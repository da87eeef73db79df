// Package api is the client of the portfolio backend's REST API.
//
// It is the only place that knows URLs, JSON shapes and status codes. Every
// response is decoded into the explicit records of internal/model and
// validated here, and every failure leaves this package as an
// *apperror.AppError:
//
//	401 → ErrUnauthorized     404 → ErrNotFound
//	403 → ErrForbidden        422 → ErrValidation
//	no response at all → ErrUnreachable
//	anything else, or a body that does not parse → ErrUnknown
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/auth"
	"github.com/sakif/devfolio-web/internal/config"
	"github.com/sakif/devfolio-web/internal/model"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 4 << 20

// Client calls the backend API.
type Client struct {
	baseURL    string
	isDefault  bool
	configured bool
	http       *http.Client
}

// New creates a Client for cfg.APIBaseURL(). Outgoing requests are traced
// with otelhttp and bounded by cfg.APITimeout.
func New(cfg *config.Config) *Client {
	return NewWithHTTPClient(cfg, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.APITimeout,
	})
}

// NewWithHTTPClient is New with a caller-supplied http.Client (tests).
func NewWithHTTPClient(cfg *config.Config, hc *http.Client) *Client {
	base := strings.TrimRight(cfg.APIBaseURL(), "/")
	return &Client{
		baseURL:    base,
		isDefault:  base == config.DefaultAPIURL,
		configured: cfg.IsAPIConfigured(),
		http:       hc,
	}
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Configured reports whether a real backend URL was set. When it is false
// the pages disable sign-in instead of calling a backend that is not there.
func (c *Client) Configured() bool { return c.configured }

// GitHubRedirectURL returns the GitHub authorize URL the backend built for
// this app. GET /auth/github/redirect
func (c *Client) GitHubRedirectURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/github/redirect", "", nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", apperror.Unknown("malformed response from /auth/github/redirect: missing url")
	}
	return resp.URL, nil
}

// CurrentUser returns the account behind token. GET /auth/me
func (c *Client) CurrentUser(ctx context.Context, token string) (*model.UserIdentity, error) {
	var resp struct {
		Data *model.UserIdentity `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.Data.Validate(); err != nil {
		return nil, malformed("/auth/me", err)
	}
	return resp.Data, nil
}

// OwnProfile returns the signed-in user's profile. GET /profile
func (c *Client) OwnProfile(ctx context.Context, token string) (*model.ProfileView, error) {
	return c.profile(ctx, "/profile", token)
}

// PublicProfile returns the profile of username without credentials.
// GET /profiles/{username}
func (c *Client) PublicProfile(ctx context.Context, username string) (*model.ProfileView, error) {
	return c.profile(ctx, "/profiles/"+url.PathEscape(username), "")
}

func (c *Client) profile(ctx context.Context, path, token string) (*model.ProfileView, error) {
	var view model.ProfileView
	if err := c.do(ctx, http.MethodGet, path, token, nil, &view); err != nil {
		return nil, err
	}
	if err := view.Validate(); err != nil {
		return nil, malformed(path, err)
	}
	return &view, nil
}

// UpdateProfile sends a partial profile update. PATCH /profile
func (c *Client) UpdateProfile(ctx context.Context, token string, patch model.ProfilePatch) error {
	var resp messageResponse
	return c.do(ctx, http.MethodPatch, "/profile", token, patch, &resp)
}

// RefreshStats asks the backend to recompute the cached GitHub statistics.
// The new numbers show up on a later OwnProfile. POST /profile/refresh-github-stats
func (c *Client) RefreshStats(ctx context.Context, token string) error {
	var resp messageResponse
	return c.do(ctx, http.MethodPost, "/profile/refresh-github-stats", token, nil, &resp)
}

// messageResponse is the {message, data} envelope of the mutating endpoints.
// data is not used: the pages always re-read the profile.
type messageResponse struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// errorResponse is what the backend sends with a non-2xx status. errors is
// only present on 422.
type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// do sends one request and decodes a 2xx body into out. A non-empty token is
// attached as a bearer credential.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperror.Unknown(fmt.Sprintf("encoding request body: %v", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperror.Unknown(fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.http
	if token != "" {
		hc = auth.BearerClient(c.http, token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return c.unreachable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return c.unreachable(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return malformed(path, err)
	}
	return nil
}

// unreachable turns a transport failure into ErrUnreachable with a message
// that tells the operator what to check.
func (c *Client) unreachable(err error) error {
	var msg string
	if c.isDefault {
		msg = fmt.Sprintf("Backend API not available at %s. Make sure your backend is running on port 8000, or set the API_URL environment variable to the correct backend URL.", c.baseURL)
	} else {
		msg = fmt.Sprintf("Failed to reach backend API at %s. Make sure your backend is running and API_URL is set correctly.", c.baseURL)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		msg += " (request timed out)"
	}
	return &apperror.AppError{Err: apperror.ErrUnreachable, Message: msg}
}

func statusError(status int, body []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Message

	switch status {
	case http.StatusUnauthorized:
		return apperror.Unauthorized(orDefault(msg, "Unauthenticated."))
	case http.StatusForbidden:
		return apperror.Forbidden(orDefault(msg, "Forbidden"))
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: orDefault(msg, "Not found")}
	case http.StatusUnprocessableEntity:
		field, fieldMsg := firstFieldError(parsed.Errors)
		if fieldMsg != "" {
			return apperror.ValidationFailed(field, fieldMsg)
		}
		return apperror.ValidationFailed("", orDefault(msg, "The given data was invalid."))
	default:
		return apperror.Unknown(msg)
	}
}

// firstFieldError picks a deterministic field error: the alphabetically
// first field with a message.
func firstFieldError(errs map[string][]string) (string, string) {
	var field, msg string
	for f, msgs := range errs {
		if len(msgs) == 0 {
			continue
		}
		if field == "" || f < field {
			field, msg = f, msgs[0]
		}
	}
	return field, msg
}

func malformed(path string, err error) error {
	return apperror.Unknown(fmt.Sprintf("malformed response from %s: %v", path, err))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Ping checks that the backend answers at all. Any HTTP response counts,
// even an error status; only transport failures are reported.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/github/redirect", nil)
	if err != nil {
		return apperror.Unknown(err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.unreachable(err)
	}
	resp.Body.Close()
	return nil
}
