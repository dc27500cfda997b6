// Package templates embeds the HTML pages and static assets of the blog.
package templates

import (
	"embed"
	"html"
	"html/template"
	"io/fs"
	"time"

	"github.com/cppla/blogsite/utils"
)

//go:embed *.html
var pages embed.FS

//go:embed static
var static embed.FS

// Funcs are the helpers available to every page.
var Funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"date": func(t time.Time) string {
		return t.Format("Jan 2, 2006")
	},
	// safe marks stored post bodies and comments as HTML; they are sanitised before saving.
	"safe": func(s string) template.HTML { return template.HTML(s) },
	"excerpt": func(s string, n int) string {
		s = html.UnescapeString(utils.SanitizeText(s))
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "..."
	},
}

// Load parses every page together with the shared partials.
func Load() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(pages, "*.html")
}

// Static returns the embedded asset tree rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
