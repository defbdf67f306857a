package report

import (
	"embed"
	"html/template"
	"io"
	"strconv"
	"time"
)

//go:embed templates/*.html
var content embed.FS

// HTMLRenderer renders a Document as a standalone HTML page.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded page template.
func NewHTMLRenderer() *HTMLRenderer {
	tmpl := template.Must(
		template.New("report.html").
			Funcs(template.FuncMap{
				"duration": formatDuration,
				"share":    share,
			}).
			ParseFS(content, "templates/*.html"),
	)
	return &HTMLRenderer{tmpl: tmpl}
}

func (r *HTMLRenderer) Render(w io.Writer, doc *Document) error {
	return r.tmpl.ExecuteTemplate(w, "report.html", doc)
}

// share formats count as a whole percentage of total.
func share(count int, total int64) string {
	if total <= 0 {
		return "0%"
	}
	return strconv.FormatInt(int64(count)*100/total, 10) + "%"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
