package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/devfolio-web/internal/apperror"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestProfileViewDecode(t *testing.T) {
	payload := `{
		"user": {"id": 7, "name": "", "github_username": "octocat", "github_avatar": "https://a/x.png"},
		"profile": {"bio": "hi", "theme": "light", "public": false},
		"github_stats": {
			"total_repositories": 8, "total_stars": 42,
			"languages": {"Go": 5, "Rust": 5, "PHP": 9},
			"pinned_repositories": [{"name": "hello", "url": "https://github.com/octocat/hello", "stars": 3}],
			"recent_activity": [{"type": "PushEvent", "repo": "octocat/hello", "created_at": "2024-01-02T03:04:05Z"}]
		}
	}`

	var view ProfileView
	if err := json.Unmarshal([]byte(payload), &view); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := view.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if got := view.User.DisplayNameOrLogin(); got != "octocat" {
		t.Errorf("DisplayNameOrLogin() = %q, want %q", got, "octocat")
	}
	if view.Profile.IsPublic() {
		t.Error("IsPublic() = true, want false for explicit public:false")
	}
	if got := view.Profile.ThemeOrDefault(); got != ThemeLight {
		t.Errorf("ThemeOrDefault() = %q, want %q", got, ThemeLight)
	}

	top := view.GitHubStats.Languages.Top(2)
	if len(top) != 2 || top[0].Name != "PHP" || top[1].Name != "Go" {
		t.Errorf("Top(2) = %+v, want PHP then Go (ties broken by name)", top)
	}
	if got := view.GitHubStats.RecentActivity[0].Label(); got != "Push" {
		t.Errorf("Label() = %q, want %q", got, "Push")
	}
}

func TestLanguageHistogramAcceptsEmptyArray(t *testing.T) {
	var stats GitHubStats
	if err := json.Unmarshal([]byte(`{"languages": []}`), &stats); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if stats.Languages == nil || len(stats.Languages) != 0 {
		t.Errorf("Languages = %#v, want empty non-nil map", stats.Languages)
	}
}

func TestProfileViewValidateRejectsMissingUser(t *testing.T) {
	var view ProfileView
	if err := json.Unmarshal([]byte(`{"profile": {}, "github_stats": {}}`), &view); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := view.Validate(); err == nil {
		t.Fatal("Validate() should reject a payload without a user")
	}
}

func TestProfileSettingsDefaults(t *testing.T) {
	var p ProfileSettings
	if !p.IsPublic() {
		t.Error("absent public flag should mean public")
	}
	if p.ThemeOrDefault() != ThemeDark {
		t.Errorf("ThemeOrDefault() = %q, want dark", p.ThemeOrDefault())
	}
}

func TestLatestActivityLimit(t *testing.T) {
	stats := GitHubStats{RecentActivity: make([]Activity, 9)}
	if got := len(stats.LatestActivity()); got != RecentActivityLimit {
		t.Errorf("len(LatestActivity()) = %d, want %d", got, RecentActivityLimit)
	}
}

func TestProfilePatchValidate(t *testing.T) {
	tests := []struct {
		name      string
		patch     ProfilePatch
		wantField string
		wantOK    bool
	}{
		{name: "empty patch", patch: ProfilePatch{}, wantField: ""},
		{name: "valid bio", patch: ProfilePatch{Bio: strPtr("Go developer")}, wantOK: true},
		{name: "bio too long", patch: ProfilePatch{Bio: strPtr(strings.Repeat("a", MaxBioLength+1))}, wantField: "bio"},
		{name: "multibyte bio at limit", patch: ProfilePatch{Bio: strPtr(strings.Repeat("é", MaxBioLength))}, wantOK: true},
		{name: "bad theme", patch: ProfilePatch{Theme: strPtr("neon")}, wantField: "theme"},
		{name: "light theme", patch: ProfilePatch{Theme: strPtr(ThemeLight)}, wantOK: true},
		{name: "website without scheme", patch: ProfilePatch{Website: strPtr("example.com")}, wantField: "website"},
		{name: "website cleared", patch: ProfilePatch{Website: strPtr("")}, wantOK: true},
		{name: "https website", patch: ProfilePatch{Website: strPtr("https://example.com")}, wantOK: true},
		{name: "visibility only", patch: ProfilePatch{Public: boolPtr(false)}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestProfilePatchOmitsNilFields(t *testing.T) {
	body, err := json.Marshal(ProfilePatch{Bio: strPtr("hi"), Public: boolPtr(false)})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got := string(body); got != `{"bio":"hi","public":false}` {
		t.Errorf("Marshal() = %s", got)
	}
}
