package ui

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var files embed.FS

// Page names, one per console template.
const (
	PageLogin    = "login.html"
	PageUsers    = "users.html"
	PageUserNew  = "user_new.html"
	PagePassword = "password.html"
	PageDueDate  = "due_date.html"
)

// Templates parses every console page against the shared layout. Each page
// is its own template set so their "content" blocks do not collide.
func Templates(funcs template.FuncMap) (map[string]*template.Template, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(files, "templates/layout.html")
	if err != nil {
		return nil, err
	}

	pages, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		return nil, err
	}

	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		name := p[len("templates/"):]
		if name == "layout.html" {
			continue
		}
		t, err := template.Must(layout.Clone()).ParseFS(files, p)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}
