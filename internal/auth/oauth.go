package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// BearerClient returns a copy of base whose requests carry
// "Authorization: Bearer <token>".
//
// WHY oauth2.Transport?
// The backend token is an OAuth-style bearer credential. oauth2.Transport with
// a StaticTokenSource is the standard way to attach one: it clones each
// request before adding the header, so the caller's *http.Request is never
// mutated, and it keeps base's transport (and its tracing) underneath.
func BearerClient(base *http.Client, token string) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})
	return &http.Client{
		Transport:     &oauth2.Transport{Source: src, Base: base.Transport},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
}

// ValidateAuthorizeURL checks that a sign-in URL handed out by the backend
// really points at GitHub's OAuth authorize endpoint before the browser is
// redirected there. This keeps /auth/github/login from becoming an open
// redirect if the backend response is tampered with or misconfigured.
func ValidateAuthorizeURL(raw string) error {
	if raw == "" {
		return errors.New("auth: empty authorize URL")
	}
	got, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("auth: parsing authorize URL: %w", err)
	}
	want, err := url.Parse(github.Endpoint.AuthURL)
	if err != nil {
		return fmt.Errorf("auth: parsing GitHub endpoint: %w", err)
	}
	if got.Scheme != want.Scheme || got.Host != want.Host || got.Path != want.Path {
		return fmt.Errorf("auth: authorize URL %s://%s%s is not GitHub's", got.Scheme, got.Host, got.Path)
	}
	if got.Query().Get("client_id") == "" {
		return errors.New("auth: authorize URL has no client_id")
	}
	return nil
}
