package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxADRs    = "adrs"
	primaryKey = "key"
)

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is not an error: the health loop picks it up later.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxADRs,
		PrimaryKey: primaryKey,
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxADRs, "error", err)
	}

	index := m.client.Index(idxADRs)
	filterable := []interface{}{"projectId", "status", "tags"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxADRs, "error", err)
	}
	searchable := []string{"id", "title", "context", "problem", "decision", "authors", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxADRs, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs a single-index query scoped to the project.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errUnhealthy
	}
	limit, offset := q.window()

	sr := &meili.SearchRequest{
		IndexUID:              idxADRs,
		Query:                 q.Text,
		Limit:                 int64(limit),
		Offset:                int64(offset),
		AttributesToHighlight: []string{"title", "context"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := meiliFilters(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

// meiliFilters builds the AND-ed filter expressions for the equality criteria.
// Author substrings and date ranges are applied by Service after the search.
func meiliFilters(q Query) []string {
	var filters []string
	if q.ProjectID != "" {
		filters = append(filters, fmt.Sprintf("projectId = %q", q.ProjectID))
	}
	if q.Status != "" {
		filters = append(filters, fmt.Sprintf("status = %q", q.Status))
	}
	if len(q.Tags) > 0 {
		parts := make([]string, 0, len(q.Tags))
		for _, tag := range q.Tags {
			parts = append(parts, fmt.Sprintf("tags = %q", tag))
		}
		filters = append(filters, strings.Join(parts, " OR "))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:        decodeString(hit, "id"),
		ProjectID: decodeString(hit, "projectId"),
		Slug:      decodeString(hit, "slug"),
		Status:    decodeString(hit, "status"),
		Date:      decodeString(hit, "date"),
		Tags:      decodeStrings(hit, "tags"),
		Authors:   decodeStrings(hit, "authors"),
	}
	r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	r.Snippet = snippet(firstNonBlank(decodeFormattedString(hit, "context"), decodeString(hit, "context")), 160)
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	values := []string{}
	if raw, ok := hit[key]; ok {
		_ = json.Unmarshal(raw, &values)
	}
	return values
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Index adds or replaces ADR documents.
func (m *Meili) Index(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if !m.healthy.Load() {
		return errUnhealthy
	}
	_, err := m.client.Index(idxADRs).AddDocuments(docs, nil)
	return err
}

// Delete removes ADR documents by key.
func (m *Meili) Delete(keys []string) error {
	if !m.healthy.Load() {
		return errUnhealthy
	}
	index := m.client.Index(idxADRs)
	for _, key := range keys {
		if _, err := index.DeleteDocument(key, nil); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
