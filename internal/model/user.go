// Package model defines the data structures used throughout the application.
//
// PARSE AT THE BOUNDARY:
// The backend's JSON is decoded straight into these records by internal/api,
// and each record has a Validate method that runs right after decoding. Code
// above the API client can therefore trust that a *UserIdentity has an ID and
// a GitHub username without re-checking at every call site.
package model

import (
	"errors"
	"strings"
	"time"
)

// UserIdentity is the account bound to a bearer token, as returned by
// GET /auth/me ({"data": {...}}) and embedded in profile payloads.
//
// WHY DisplayName FOR "name"?
// The backend calls it "name"; every page calls it the display name, and it
// may be empty for GitHub accounts that never set one. DisplayNameOrLogin
// handles the fallback so templates don't have to.
type UserIdentity struct {
	ID             int64      `json:"id"`
	DisplayName    string     `json:"name"`
	Email          string     `json:"email,omitempty"`
	GitHubID       int64      `json:"github_id,omitempty"`
	GitHubUsername string     `json:"github_username"`
	AvatarURL      string     `json:"github_avatar"`
	LastGitHubSync *time.Time `json:"last_github_sync,omitempty"`
}

// Validate checks the fields every page relies on.
func (u *UserIdentity) Validate() error {
	if u == nil {
		return errors.New("model: user is missing")
	}
	if u.ID == 0 {
		return errors.New("model: user has no id")
	}
	if strings.TrimSpace(u.GitHubUsername) == "" {
		return errors.New("model: user has no github_username")
	}
	return nil
}

// DisplayNameOrLogin returns the display name, or the GitHub login when the
// account has no name set.
func (u *UserIdentity) DisplayNameOrLogin() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.GitHubUsername
}
