package search

import (
	"context"
	"fmt"
	"log/slog"

	"adrmanager/internal/adr"
)

// Lister is the fresh listing the fallback filters over.
type Lister interface {
	List(ctx context.Context) ([]adr.ADR, error)
}

// Service is the facade that tries Meilisearch first and falls back to
// filtering a fresh listing in memory.
type Service struct {
	engine Engine
	logger *slog.Logger
}

// NewService creates a search service. engine may be nil if Meilisearch is not configured.
func NewService(engine Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}
}

func (s *Service) available() bool {
	return s.engine != nil && s.engine.Healthy()
}

// maxCandidates caps the engine hits fetched when results are filtered
// after the engine answers. It matches Meilisearch's default maxTotalHits.
const maxCandidates = 1000

// Search tries the engine if healthy, otherwise filters src.
func (s *Service) Search(ctx context.Context, q Query, src Lister) (Response, error) {
	if s.available() {
		resp, err := s.searchEngine(q)
		if err == nil {
			return resp, nil
		}
		s.logger.Warn("meilisearch error, falling back to listing", "error", err)
	}

	adrs, err := src.List(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("list adrs: %w", err)
	}
	matched := adr.FilterADRs(adrs, q.filter())
	results := make([]Result, 0, len(matched))
	for _, a := range matched {
		results = append(results, resultFromADR(q.ProjectID, a))
	}
	limit, offset := q.window()
	return Response{Results: window(results, limit, offset), Total: len(matched), Query: q.Text, Source: SourceFallback}, nil
}

func (s *Service) searchEngine(q Query) (Response, error) {
	if !q.needsPostFilter() {
		results, total, err := s.engine.Search(q)
		if err != nil {
			return Response{}, err
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceMeili}, nil
	}

	wide := q
	wide.Limit, wide.Offset = maxCandidates, 0
	results, total, err := s.engine.Search(wide)
	if err != nil {
		return Response{}, err
	}
	if total > maxCandidates {
		s.logger.Warn("search candidates truncated", "total", total, "limit", maxCandidates)
	}
	matched := postFilter(results, q)
	limit, offset := q.window()
	return Response{Results: window(matched, limit, offset), Total: len(matched), Query: q.Text, Source: SourceMeili}, nil
}

// postFilter applies the author and date criteria to engine hits with the
// same semantics as adr.Filter.
func postFilter(results []Result, q Query) []Result {
	f := adr.Filter{Author: q.Author, DateFrom: q.DateFrom, DateTo: q.DateTo}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		authors := make([]adr.Author, 0, len(r.Authors))
		for _, name := range r.Authors {
			authors = append(authors, adr.Author{Name: name})
		}
		if f.Match(adr.ADR{Record: adr.Record{Date: r.Date, Authors: authors}}) {
			out = append(out, r)
		}
	}
	return out
}

func window(results []Result, limit, offset int) []Result {
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

// IndexADR indexes an ADR (fire-and-forget).
func (s *Service) IndexADR(projectID string, a adr.ADR) {
	if !s.available() {
		return
	}
	doc := NewDocument(projectID, a)
	go func() {
		if err := s.engine.Index([]Document{doc}); err != nil {
			s.logger.Warn("index adr", "key", doc.Key, "error", err)
		}
	}()
}

// DeleteADR removes an ADR from the index (fire-and-forget).
func (s *Service) DeleteADR(projectID, id string) {
	if !s.available() {
		return
	}
	key := DocumentKey(projectID, id)
	go func() {
		if err := s.engine.Delete([]string{key}); err != nil {
			s.logger.Warn("delete adr from index", "key", key, "error", err)
		}
	}()
}

// Reindex pushes every ADR of the project to the engine and returns how many
// were sent.
func (s *Service) Reindex(ctx context.Context, projectID string, src Lister) (int, error) {
	if !s.available() {
		return 0, fmt.Errorf("reindex: %w", errUnhealthy)
	}
	adrs, err := src.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list adrs: %w", err)
	}
	docs := make([]Document, 0, len(adrs))
	for _, a := range adrs {
		docs = append(docs, NewDocument(projectID, a))
	}
	if err := s.engine.Index(docs); err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return len(docs), nil
}

// Available reports whether searches are answered by the engine.
func (s *Service) Available() bool {
	return s.available()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
