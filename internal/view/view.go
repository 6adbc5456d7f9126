// Package view renders the site's HTML pages from embedded templates.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/members-area/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names accepted by Renderer.Render.
const (
	Home    = "home"
	Signup  = "signup"
	Login   = "login"
	Members = "members"
	Admin   = "admin"
	Error   = "error"
)

var pages = []string{Home, Signup, Login, Members, Admin, Error}

// Images shown at random on the members page.
var Images = []string{"img1.svg", "img2.svg", "img3.svg"}

// Page is the data handed to every template.  Fields a page does not use are
// left zero.
type Page struct {
	Title   string
	User    *model.Snapshot // nil when anonymous
	Error   string
	Name    string // echoed back into the signup form
	Email   string // echoed back into the signup and login forms
	Image   string
	Users   []model.User
	Status  int
	Message string
}

// Renderer implements echo.Renderer.  Each page is parsed together with the
// shared layout once at startup.
type Renderer struct {
	templates map[string]*template.Template
}

var _ echo.Renderer = (*Renderer)(nil)

// NewRenderer parses every page template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render writes the named page wrapped in the layout.
func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// Static returns the static assets rooted so that "img/img1.svg" resolves.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
