package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adrmanager/internal/adr"
)

// Service provides ADR export functionality
type Service struct {
	lang Language
	now  func() time.Time
}

// NewService creates a new export service producing documents in lang.
func NewService(lang Language) *Service {
	return &Service{lang: ParseLanguage(string(lang)), now: time.Now}
}

// WithClock overrides the generation timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, r adr.Record, format Format) (*Result, error) {
	name := Filename(r)
	generatedAt := s.now()

	switch format {
	case FormatMarkdown, "":
		md, err := Markdown(r, s.lang, generatedAt)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     []byte(md),
			Filename: name + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	case FormatHTML, FormatPDF, FormatDOCX:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	html, err := HTML(r, s.lang, generatedAt)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatPDF:
		return exportPDF(ctx, html, name, "ADR-"+r.ID+" - "+r.Title)
	case FormatDOCX:
		return exportDOCX(ctx, html, name, "ADR-"+r.ID+" - "+r.Title)
	default:
		return &Result{
			Data:     []byte(html),
			Filename: name + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	}
}

// Filename is the base name of exported files: the slug, else one derived
// from the title.
func Filename(r adr.Record) string {
	if r.Slug != "" && isSafeName(r.Slug) {
		return r.Slug
	}
	if slug := adr.Slugify(r.Title); slug != "" {
		return sanitizeFilename(slug)
	}
	return sanitizeFilename("adr-" + r.ID)
}

func isSafeName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

const maxFilenameLen = 50

// sanitizeFilename keeps ASCII letters, digits, dashes and underscores,
// turns spaces into dashes and caps the length.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "adr"
	}
	return b.String()
}
