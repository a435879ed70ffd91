package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"adrmanager/internal/adr"

	"github.com/russross/blackfriday/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("document.html").
		Funcs(template.FuncMap{"statusClass": statusClass}).
		ParseFS(templateFS, "templates/document.html"),
)

// htmlPage is what templates/document.html renders. Body is already HTML.
type htmlPage struct {
	Lang    string
	ID      string
	Title   string
	Status  adr.Status
	Label   string
	Version string
	Date    string
	Authors string
	Tags    []string
	Body    template.HTML
}

func statusClass(s adr.Status) string {
	if s.Valid() {
		return "status-" + string(s)
	}
	return "status-unknown"
}

func renderPage(p htmlPage) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// HTML renders the Markdown body of an ADR into a standalone page.
func HTML(r adr.Record, lang Language, generatedAt time.Time) (string, error) {
	body := blackfriday.Run(
		[]byte(markdownBody(r, lang, generatedAt)),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
	)

	names := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	label := labelsFor(lang).Statuses[r.Status]
	if label == "" {
		label = string(r.Status)
	}

	return renderPage(htmlPage{
		Lang:    string(lang),
		ID:      r.ID,
		Title:   r.Title,
		Status:  r.Status,
		Label:   label,
		Version: r.Version,
		Date:    r.Date,
		Authors: strings.Join(names, ", "),
		Tags:    r.Tags,
		Body:    template.HTML(body),
	})
}
