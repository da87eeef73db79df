package view

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/model"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, c.Render(context.Background(), &sb))
	return sb.String()
}

func TestLanding_NotConfigured(t *testing.T) {
	out := render(t, Landing(LandingPage{Configured: false}))

	assert.Contains(t, out, "Backend API Not Configured")
	assert.Contains(t, out, "<button class=\"button\" disabled>")
	assert.NotContains(t, out, "/auth/github/login")
}

func TestLanding_Configured(t *testing.T) {
	out := render(t, Landing(LandingPage{Configured: true, Notice: "Failed to reach backend API"}))

	assert.NotContains(t, out, "Not Configured")
	assert.Contains(t, out, `href="/auth/github/login"`)
	assert.Contains(t, out, "Failed to reach backend API")
}

func TestProfile_EscapesUserContent(t *testing.T) {
	view := &model.ProfileView{
		User: model.UserIdentity{ID: 1, GitHubUsername: "octocat", DisplayName: "<b>Octo</b>"},
		Profile: model.ProfileSettings{
			Bio:     `<script>alert("x")</script>`,
			Website: "javascript:alert(1)",
		},
		GitHubStats: model.GitHubStats{
			TotalStars: 42,
			Languages:  model.LanguageHistogram{"Go": 3},
		},
	}
	out := render(t, Profile(ProfilePage{Username: "octocat", View: view}))

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "&lt;b&gt;Octo&lt;/b&gt;")
	assert.NotContains(t, out, `href="javascript:`)
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "Go")
}

func TestProfile_LinksAndActivity(t *testing.T) {
	view := &model.ProfileView{
		User:    model.UserIdentity{ID: 1, GitHubUsername: "octocat", AvatarURL: "javascript:alert(1)"},
		Profile: model.ProfileSettings{Twitter: "octo", Location: "Berlin"},
		GitHubStats: model.GitHubStats{
			PinnedRepositories: []model.Repository{
				{Name: "hello", URL: "https://github.com/octocat/hello", Stars: 7, Language: "Go"},
			},
			RecentActivity: []model.Activity{
				{Type: "PushEvent", Repo: "octocat/hello", CreatedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
			},
		},
	}
	out := render(t, Profile(ProfilePage{Username: "octocat", View: view}))

	assert.Contains(t, out, `href="https://twitter.com/octo"`)
	assert.Contains(t, out, "@octo")
	assert.Contains(t, out, "Berlin")
	assert.Contains(t, out, `href="https://github.com/octocat/hello"`)
	assert.Contains(t, out, "Go · ★ 7")
	assert.Contains(t, out, `<span class="event">Push</span> octocat/hello`)
	assert.Contains(t, out, `datetime="2024-03-05T10:00:00Z"`)
	assert.Contains(t, out, "Mar 5, 2024")
	assert.NotContains(t, out, `src="javascript:`)
}

func TestProfile_Failures(t *testing.T) {
	tests := []struct {
		kind apperror.Kind
		msg  string
		want string
	}{
		{apperror.KindNotFound, "", "Developer profile not found"},
		{apperror.KindPrivateProfile, "", "This profile is private"},
		{apperror.KindUnreachable, "Failed to reach backend API at x", "Failed to reach backend API at x"},
		{apperror.KindUnknown, "", "Failed to load profile"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			out := render(t, Profile(ProfilePage{Username: "x", ErrKind: tt.kind, ErrMsg: tt.msg}))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestProfile_LoadingShowsSkeleton(t *testing.T) {
	out := render(t, Profile(ProfilePage{Username: "x", Loading: true}))

	assert.Contains(t, out, `aria-busy="true"`)
	assert.Contains(t, out, `http-equiv="refresh"`)
}

func TestDashboard_Form(t *testing.T) {
	public := false
	view := &model.ProfileView{
		User:    model.UserIdentity{ID: 1, GitHubUsername: "octocat"},
		Profile: model.ProfileSettings{Bio: "Gopher", Theme: model.ThemeLight, Public: &public},
	}
	out := render(t, Dashboard(DashboardPage{User: &view.User, View: view, Flash: "Profile updated"}))

	assert.Contains(t, out, `action="/dashboard/profile"`)
	assert.Contains(t, out, `action="/dashboard/refresh"`)
	assert.Contains(t, out, `action="/logout"`)
	assert.Contains(t, out, `<option value="light" selected>`)
	assert.Contains(t, out, "Profile updated")
	assert.Contains(t, out, `class="theme-light"`)
	assert.NotContains(t, out, `value="true" checked`)
}

func TestErrorPage(t *testing.T) {
	out := render(t, ErrorPage("Authentication Error", "access_denied"))
	assert.Contains(t, out, "Authentication Error")
	assert.Contains(t, out, "access_denied")
}
