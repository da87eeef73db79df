// Package view renders the HTML pages.
//
// TEMPLATE COMPOSITION:
// Pages are html/template files embedded in the binary. Every page set is
// parsed from three files:
//   - base.html defines the document shell with a {{template "content" .Page}} placeholder
//   - partials.html defines fragments shared by several pages (banner, profile, ...)
//   - <page>.html defines {{define "content"}}...{{end}} for that page
//
// Each page is returned as a templ.Component, so handlers serve every page the
// same way through templ.Handler (which also sets the status code).
//
// ESCAPING:
// html/template escapes by context: text, attribute values and URLs are each
// escaped their own way, and URLs with a javascript: or other unsafe scheme are
// replaced by "#ZgotmplZ". Nothing user-controlled (bio, status, repository
// names from GitHub) is ever written raw.
package view

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/model"
)

//go:embed templates/*.html
var templateFiles embed.FS

var funcs = template.FuncMap{
	"banner": newBanner,
}

// Templates are parsed once at startup. A broken template is a programming
// error, so template.Must panics instead of returning it.
var (
	landingTemplates   = parsePage("landing.html")
	profileTemplates   = parsePage("profile.html")
	dashboardTemplates = parsePage("dashboard.html")
	errorTemplates     = parsePage("error.html")
)

func parsePage(name string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).ParseFS(templateFiles,
		"templates/base.html",
		"templates/partials.html",
		"templates/"+name,
	))
}

// document is the data of base.html. Page is handed to the "content"
// template.
type document struct {
	Title   string
	Theme   string // "dark" or "light"
	Refresh int    // > 0 adds a meta refresh, used while data is still loading
	Page    any
}

// compose executes the "base" template of t as a templ.Component.
func compose(t *template.Template, doc document) templ.Component {
	if doc.Theme != model.ThemeLight {
		doc.Theme = model.ThemeDark
	}
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, "base", doc)
	})
}

// banner is the data of the "banner" partial. Kind is "error", "warning" or
// "info".
type banner struct {
	Kind    string
	Title   string
	Message string
}

func newBanner(kind, title, message string) *banner {
	return &banner{Kind: kind, Title: title, Message: message}
}

// FailureMessage is what a page says for a failed profile fetch.
func FailureMessage(kind apperror.Kind, message string) string {
	switch kind {
	case apperror.KindNotFound:
		return "Developer profile not found"
	case apperror.KindPrivateProfile:
		return "This profile is private"
	case apperror.KindUnauthorized:
		return "Your session has expired. Please sign in again."
	default:
		if message == "" {
			return "Failed to load profile"
		}
		return message
	}
}
