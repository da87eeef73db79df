package view

import (
	"time"

	"github.com/a-h/templ"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/model"
)

// loadingRefresh is the meta refresh interval, in seconds, of a page whose
// data is still loading.
const loadingRefresh = 2

// LandingPage is the data of GET /.
type LandingPage struct {
	Configured bool   // false disables every sign-in action
	Notice     string // connectivity problem from the last identity check
	Error      string // sign-in could not be started
}

func Landing(p LandingPage) templ.Component {
	return compose(landingTemplates, document{Title: "Welcome", Page: p})
}

// ProfilePage is the data of GET /{username}.
type ProfilePage struct {
	Username string
	Loading  bool
	View     *model.ProfileView
	ErrKind  apperror.Kind
	ErrMsg   string
}

func Profile(p ProfilePage) templ.Component {
	return compose(profileTemplates, document{
		Title:   p.Username,
		Theme:   themeOf(p.View),
		Refresh: refreshWhile(p.Loading),
		Page:    newFetch(p.Loading, p.ErrKind, p.ErrMsg, p.View),
	})
}

// DashboardPage is the data of GET /dashboard.
type DashboardPage struct {
	User    *model.UserIdentity
	Loading bool
	View    *model.ProfileView
	ErrKind apperror.Kind
	ErrMsg  string

	Flash      string // result of the last action
	FlashError bool
}

type dashboardContent struct {
	Login string
	Flash *banner
	Fetch fetch
	Form  *profileForm
}

func Dashboard(p DashboardPage) templ.Component {
	content := dashboardContent{
		Fetch: newFetch(p.Loading, p.ErrKind, p.ErrMsg, p.View),
	}
	if p.User != nil {
		content.Login = p.User.GitHubUsername
	}
	if p.Flash != "" {
		kind := "info"
		if p.FlashError {
			kind = "error"
		}
		content.Flash = newBanner(kind, p.Flash, "")
	}
	if content.Fetch.Body != nil {
		content.Form = newProfileForm(p.View.Profile)
	}

	return compose(dashboardTemplates, document{
		Title:   "Dashboard",
		Theme:   themeOf(p.View),
		Refresh: refreshWhile(p.Loading),
		Page:    content,
	})
}

// ErrorPage is a terminal error, e.g. a failed OAuth callback.
func ErrorPage(title, message string) templ.Component {
	return compose(errorTemplates, document{
		Title: title,
		Page:  newBanner("error", title, message),
	})
}

func themeOf(v *model.ProfileView) string {
	if v == nil {
		return model.ThemeDark
	}
	return v.Profile.ThemeOrDefault()
}

func refreshWhile(loading bool) int {
	if loading {
		return loadingRefresh
	}
	return 0
}

// fetch is the data of the "fetch" partial. At most one field is set.
type fetch struct {
	Loading bool
	Failure string
	Body    *profileBody
}

func newFetch(loading bool, kind apperror.Kind, message string, v *model.ProfileView) fetch {
	switch {
	case loading:
		return fetch{Loading: true}
	case kind != apperror.KindNone:
		return fetch{Failure: FailureMessage(kind, message)}
	case v != nil:
		return fetch{Body: newProfileBody(v)}
	default:
		return fetch{}
	}
}

// profileBody is the data of the "profile" partial.
type profileBody struct {
	AvatarURL    string
	Name         string
	Login        string
	Status       string
	Bio          string
	Location     string
	Links        []profileLink
	Stats        []profileStat
	Languages    []model.LanguageCount
	Repositories []model.Repository
	Activity     []activityEntry
	Private      bool
}

type profileLink struct {
	Href  string
	Label string
}

type profileStat struct {
	Label string
	Value int
}

type activityEntry struct {
	Label    string
	Repo     string
	Datetime string // RFC 3339, empty when the backend sent no time
	Date     string
}

// topLanguages is how many languages the tech stack section lists.
const topLanguages = 8

func newProfileBody(v *model.ProfileView) *profileBody {
	u, p, s := v.User, v.Profile, v.GitHubStats

	body := &profileBody{
		AvatarURL: u.AvatarURL,
		Name:      u.DisplayNameOrLogin(),
		Login:     u.GitHubUsername,
		Status:    p.Status,
		Bio:       p.Bio,
		Location:  p.Location,
		Stats: []profileStat{
			{"Repositories", s.TotalRepositories},
			{"Stars", s.TotalStars},
			{"Followers", s.TotalFollowers},
			{"Following", s.TotalFollowing},
		},
		Languages:    s.Languages.Top(topLanguages),
		Repositories: s.PinnedRepositories,
		Private:      !p.IsPublic(),
	}

	if p.Website != "" {
		body.Links = append(body.Links, profileLink{p.Website, p.Website})
	}
	if p.Twitter != "" {
		body.Links = append(body.Links, profileLink{"https://twitter.com/" + p.Twitter, "@" + p.Twitter})
	}
	if p.LinkedIn != "" {
		body.Links = append(body.Links, profileLink{"https://www.linkedin.com/in/" + p.LinkedIn, "LinkedIn"})
	}

	for _, a := range s.LatestActivity() {
		e := activityEntry{Label: a.Label(), Repo: a.Repo}
		if !a.CreatedAt.IsZero() {
			e.Datetime = a.CreatedAt.UTC().Format(time.RFC3339)
			e.Date = a.CreatedAt.UTC().Format("Jan 2, 2006")
		}
		body.Activity = append(body.Activity, e)
	}
	return body
}

// profileForm is the data of the dashboard's edit form.
type profileForm struct {
	Bio    string
	MaxBio int
	Fields []formField
	Themes []themeOption
	Public bool
}

type formField struct {
	Name        string
	Label       string
	Value       string
	Placeholder string
	Max         int
}

type themeOption struct {
	Value    string
	Selected bool
}

func newProfileForm(p model.ProfileSettings) *profileForm {
	theme := p.ThemeOrDefault()
	return &profileForm{
		Bio:    p.Bio,
		MaxBio: model.MaxBioLength,
		Fields: []formField{
			{"status", "Status", p.Status, "e.g., Open to opportunities", model.MaxStatusLength},
			{"location", "Location", p.Location, "City, Country", model.MaxLocationLength},
			{"website", "Website", p.Website, "https://example.com", model.MaxWebsiteLength},
			{"twitter", "Twitter", p.Twitter, "username", model.MaxHandleLength},
			{"linkedin", "LinkedIn", p.LinkedIn, "username", model.MaxHandleLength},
		},
		Themes: []themeOption{
			{model.ThemeDark, theme == model.ThemeDark},
			{model.ThemeLight, theme == model.ThemeLight},
		},
		Public: p.IsPublic(),
	}
}
