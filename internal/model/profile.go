package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/devfolio-web/internal/apperror"
)

// Editable field limits. The bio limit matches the dashboard form; the others
// keep a single line of text on the profile header.
const (
	MaxBioLength      = 500
	MaxStatusLength   = 100
	MaxLocationLength = 100
	MaxHandleLength   = 100
	MaxWebsiteLength  = 255
)

// Themes a profile may select.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// ProfileSettings is the user-editable part of a profile.
//
// Public is a pointer because the backend may omit it; an absent value means
// public (only an explicit false hides the profile).
type ProfileSettings struct {
	Bio      string `json:"bio"`
	Theme    string `json:"theme"`
	Status   string `json:"status"`
	Location string `json:"location"`
	Website  string `json:"website"`
	Twitter  string `json:"twitter"`
	LinkedIn string `json:"linkedin"`
	Public   *bool  `json:"public"`
}

// IsPublic reports whether the profile is visible at /{username}.
func (p ProfileSettings) IsPublic() bool {
	return p.Public == nil || *p.Public
}

// ThemeOrDefault returns the selected theme, defaulting to dark.
func (p ProfileSettings) ThemeOrDefault() string {
	if p.Theme == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// Repository is a pinned repository card.
type Repository struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	Language    string `json:"language"`
}

// Activity is one entry of the recent GitHub event feed.
type Activity struct {
	Type      string    `json:"type"`
	Repo      string    `json:"repo"`
	CreatedAt time.Time `json:"created_at"`
}

// Label turns a GitHub event type ("PushEvent") into a display label ("Push").
func (a Activity) Label() string {
	return strings.TrimSuffix(a.Type, "Event")
}

// LanguageHistogram maps a language name to the number of repositories that
// use it.
//
// The backend serializes an empty histogram as a JSON array ([]) rather than
// an object, so UnmarshalJSON accepts both.
type LanguageHistogram map[string]int

func (h *LanguageHistogram) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*h = LanguageHistogram{}
		return nil
	}
	var m map[string]int
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return fmt.Errorf("model: decoding languages: %w", err)
	}
	*h = m
	return nil
}

// LanguageCount is one row of a sorted histogram.
type LanguageCount struct {
	Name  string
	Count int
}

// Top returns at most n languages, most used first. Ties are broken by name so
// the order is stable between renders.
func (h LanguageHistogram) Top(n int) []LanguageCount {
	out := make([]LanguageCount, 0, len(h))
	for name, count := range h {
		out = append(out, LanguageCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// GitHubStats is the cached statistics block the backend computes from the
// GitHub API.
type GitHubStats struct {
	TotalRepositories  int               `json:"total_repositories"`
	TotalStars         int               `json:"total_stars"`
	TotalFollowers     int               `json:"total_followers"`
	TotalFollowing     int               `json:"total_following"`
	TotalContributions int               `json:"total_contributions"`
	PublicRepos        int               `json:"public_repos"`
	Languages          LanguageHistogram `json:"languages"`
	PinnedRepositories []Repository      `json:"pinned_repositories"`
	RecentActivity     []Activity        `json:"recent_activity"`
}

// RecentActivityLimit is how many activity entries a profile page shows.
const RecentActivityLimit = 5

// LatestActivity returns the first RecentActivityLimit entries.
func (s GitHubStats) LatestActivity() []Activity {
	if len(s.RecentActivity) > RecentActivityLimit {
		return s.RecentActivity[:RecentActivityLimit]
	}
	return s.RecentActivity
}

// ProfileView is the combined payload of GET /profile and
// GET /profiles/{username}.
type ProfileView struct {
	User        UserIdentity    `json:"user"`
	Profile     ProfileSettings `json:"profile"`
	GitHubStats GitHubStats     `json:"github_stats"`
}

func (v *ProfileView) Validate() error {
	if v == nil {
		return fmt.Errorf("model: profile payload is missing")
	}
	if err := v.User.Validate(); err != nil {
		return err
	}
	return nil
}

// ProfilePatch is a partial update for PATCH /profile. Nil fields are left
// unchanged by the backend.
type ProfilePatch struct {
	Bio      *string `json:"bio,omitempty"`
	Theme    *string `json:"theme,omitempty"`
	Status   *string `json:"status,omitempty"`
	Location *string `json:"location,omitempty"`
	Website  *string `json:"website,omitempty"`
	Twitter  *string `json:"twitter,omitempty"`
	LinkedIn *string `json:"linkedin,omitempty"`
	Public   *bool   `json:"public,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.Bio == nil && p.Theme == nil && p.Status == nil && p.Location == nil &&
		p.Website == nil && p.Twitter == nil && p.LinkedIn == nil && p.Public == nil
}

// Validate applies the same rules as the dashboard form before anything is
// sent to the backend. The backend stays the authority (it may still answer
// 422); this only avoids doomed round trips.
func (p ProfilePatch) Validate() error {
	if p.IsEmpty() {
		return apperror.ValidationFailed("", "nothing to update")
	}
	checks := []struct {
		field string
		value *string
		max   int
	}{
		{"bio", p.Bio, MaxBioLength},
		{"status", p.Status, MaxStatusLength},
		{"location", p.Location, MaxLocationLength},
		{"website", p.Website, MaxWebsiteLength},
		{"twitter", p.Twitter, MaxHandleLength},
		{"linkedin", p.LinkedIn, MaxHandleLength},
	}
	for _, c := range checks {
		if c.value != nil && utf8.RuneCountInString(*c.value) > c.max {
			return apperror.ValidationFailed(c.field,
				fmt.Sprintf("%s must be at most %d characters", c.field, c.max))
		}
	}

	if p.Theme != nil && *p.Theme != ThemeDark && *p.Theme != ThemeLight {
		return apperror.ValidationFailed("theme", "theme must be dark or light")
	}

	if p.Website != nil && *p.Website != "" {
		u, err := url.Parse(*p.Website)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperror.ValidationFailed("website", "website must be an http(s) URL")
		}
	}
	return nil
}
