// Package search indexes ADRs in Meilisearch and answers queries, falling back
// to in-memory filtering over a fresh listing when the engine is unavailable.
package search

import (
	"strings"

	"adrmanager/internal/adr"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"projectId"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Status    string   `json:"status"`
	Date      string   `json:"date"`
	Tags      []string `json:"tags"`
	Authors   []string `json:"authors"`
	Snippet   string   `json:"snippet"`
}

// Query describes a search request. Criteria are combined with AND.
type Query struct {
	ProjectID string
	Text      string
	Status    string
	Author    string
	Tags      []string
	DateFrom  string
	DateTo    string
	Limit     int
	Offset    int
}

func (q Query) filter() adr.Filter {
	return adr.Filter{
		Search:   q.Text,
		Status:   q.Status,
		Author:   q.Author,
		Tags:     q.Tags,
		DateFrom: q.DateFrom,
		DateTo:   q.DateTo,
	}
}

// needsPostFilter reports criteria the engine cannot express: author names
// match by substring and dates by range.
func (q Query) needsPostFilter() bool {
	return q.Author != "" || q.DateFrom != "" || q.DateTo != ""
}

func (q Query) window() (int, int) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Source names which backend answered.
type Source string

const (
	SourceMeili    Source = "meilisearch"
	SourceFallback Source = "fallback"
)

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  Source   `json:"source"`
}

// Engine is a full-text index of ADRs.
type Engine interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	Index(docs []Document) error
	Delete(keys []string) error
}

// Document is the data we index for an ADR. Key is unique across projects.
type Document struct {
	Key       string   `json:"key"`
	ProjectID string   `json:"projectId"`
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Status    string   `json:"status"`
	Date      string   `json:"date"`
	Tags      []string `json:"tags"`
	Authors   []string `json:"authors"`
	Context   string   `json:"context"`
	Problem   string   `json:"problem"`
	Decision  string   `json:"decision"`
	UpdatedAt string   `json:"updatedAt"`
}

func DocumentKey(projectID, id string) string {
	return projectID + "_" + id
}

// NewDocument flattens an ADR for indexing.
func NewDocument(projectID string, a adr.ADR) Document {
	authors := authorNames(a)
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return Document{
		Key:       DocumentKey(projectID, a.ID),
		ProjectID: projectID,
		ID:        a.ID,
		Title:     a.Title,
		Slug:      a.Slug,
		Status:    string(a.Status),
		Date:      a.Date,
		Tags:      tags,
		Authors:   authors,
		Context:   a.Context,
		Problem:   a.Problem,
		Decision:  a.Decision,
		UpdatedAt: a.UpdatedAt,
	}
}

func authorNames(a adr.ADR) []string {
	names := make([]string, 0, len(a.Authors))
	for _, author := range a.Authors {
		names = append(names, author.Name)
	}
	return names
}

func resultFromADR(projectID string, a adr.ADR) Result {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return Result{
		ID:        a.ID,
		ProjectID: projectID,
		Title:     a.Title,
		Slug:      a.Slug,
		Status:    string(a.Status),
		Date:      a.Date,
		Tags:      tags,
		Authors:   authorNames(a),
		Snippet:   snippet(a.Context, 160),
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
