package adr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// memBackend keeps every revision of every file so reads at a commit id work
// like they do against a real repository.
type memBackend struct {
	mu       sync.Mutex
	files    map[string][]byte
	commits  []memCommit
	seq      int
	failList error
	failRead map[string]error
	project  Project
	// claimed simulates files created concurrently by another writer.
	claimed map[string]bool
}

type memCommit struct {
	commit Commit
	path   string
	files  map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{
		files:    map[string][]byte{},
		failRead: map[string]error{},
		claimed:  map[string]bool{},
		project:  Project{ID: "42", Name: "decisions", DefaultBranch: "main"},
	}
}

func (m *memBackend) snapshot() map[string][]byte {
	out := make(map[string][]byte, len(m.files))
	for k, v := range m.files {
		out[k] = v
	}
	return out
}

func (m *memBackend) record(filePath, message string, author Identity) {
	m.seq++
	id := fmt.Sprintf("%040d", m.seq)
	m.commits = append([]memCommit{{
		commit: Commit{
			ID:          id,
			ShortID:     id[:8],
			Title:       message,
			Message:     message,
			AuthorName:  author.Name,
			CommittedAt: time.Date(2025, 1, 1, 0, m.seq, 0, 0, time.UTC),
		},
		path:  filePath,
		files: m.snapshot(),
	}}, m.commits...)
}

func (m *memBackend) ListFiles(_ context.Context, dir, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	out := []string{}
	for p := range m.files {
		if path.Dir(p) == dir {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memBackend) ReadFile(_ context.Context, filePath, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failRead[ref+":"+filePath]; ok {
		return nil, err
	}
	if ref == "main" {
		data, ok := m.files[filePath]
		if !ok {
			return nil, ErrNotFound
		}
		return data, nil
	}
	for _, c := range m.commits {
		if c.commit.ID == ref {
			data, ok := c.files[filePath]
			if !ok {
				return nil, ErrNotFound
			}
			return data, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBackend) CreateFile(_ context.Context, change FileChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[change.Path] {
		delete(m.claimed, change.Path)
		m.files[change.Path] = []byte(`{"id":"taken","title":"taken"}`)
		return ErrConflict
	}
	if _, ok := m.files[change.Path]; ok {
		return ErrConflict
	}
	m.files[change.Path] = change.Content
	m.record(change.Path, change.Message, change.Author)
	return nil
}

func (m *memBackend) UpdateFile(_ context.Context, change FileChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[change.Path]; !ok {
		return ErrNotFound
	}
	m.files[change.Path] = change.Content
	m.record(change.Path, change.Message, change.Author)
	return nil
}

func (m *memBackend) DeleteFile(_ context.Context, change FileChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[change.Path]; !ok {
		return ErrNotFound
	}
	delete(m.files, change.Path)
	m.record(change.Path, change.Message, change.Author)
	return nil
}

func (m *memBackend) ListCommits(_ context.Context, filePath, _ string) ([]Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Commit{}
	for _, c := range m.commits {
		if filePath == "" || c.path == filePath {
			out = append(out, c.commit)
		}
	}
	return out, nil
}

func (m *memBackend) Project(context.Context) (Project, error) { return m.project, nil }

func (m *memBackend) CommitDiff(_ context.Context, sha string) ([]FileDiff, error) {
	for _, c := range m.commits {
		if c.commit.ID == sha {
			return []FileDiff{{OldPath: c.path, NewPath: c.path, Diff: "@@"}}, nil
		}
	}
	return nil, ErrNotFound
}

func newTestService(b Backend) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewService(b, "adrs", "main", logger).WithClock(func() time.Time { return clock })
}

var alice = Identity{Name: "Alice", Email: "alice@example.com"}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	backend := newMemBackend()
	svc := newTestService(backend)
	ctx := context.Background()

	first, err := svc.Create(ctx, Record{Title: "Use Kafka"}, alice)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ID != "2025-0001" || first.Status != StatusProposed || first.Version != "1.0" {
		t.Fatalf("unexpected first adr: %+v", first.Record)
	}
	if first.Slug != "use-kafka" || first.Date != "2025-06-01" {
		t.Fatalf("unexpected defaults: slug=%q date=%q", first.Slug, first.Date)
	}
	if first.CreatedAt != "2025-06-01T12:00:00.000Z" || first.CreatedAt != first.UpdatedAt {
		t.Fatalf("unexpected timestamps: %q %q", first.CreatedAt, first.UpdatedAt)
	}

	second, err := svc.Create(ctx, Record{Title: "Use Postgres", Status: StatusAccepted}, alice)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.ID != "2025-0002" {
		t.Fatalf("second id = %q, want 2025-0002", second.ID)
	}
	if backend.commits[0].commit.Message != "ADR-2025-0002: CREATE Use Postgres" {
		t.Fatalf("unexpected commit message %q", backend.commits[0].commit.Message)
	}
}

func TestCreateRetriesWhenIDIsTaken(t *testing.T) {
	backend := newMemBackend()
	backend.claimed["adrs/2025-0001.json"] = true
	svc := newTestService(backend)

	created, err := svc.Create(context.Background(), Record{Title: "Race"}, alice)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "2025-0002" {
		t.Fatalf("id = %q, want 2025-0002", created.ID)
	}
}

func TestCreateValidates(t *testing.T) {
	svc := newTestService(newMemBackend())
	if _, err := svc.Create(context.Background(), Record{Title: "  "}, alice); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank title, got %v", err)
	}
	if _, err := svc.Create(context.Background(), Record{Title: "x", Status: "maybe"}, alice); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad status, got %v", err)
	}
}

func TestUpdateSnapshotsAndBumpsVersion(t *testing.T) {
	backend := newMemBackend()
	svc := newTestService(backend)
	ctx := context.Background()

	created, err := svc.Create(ctx, Record{Title: "Use Kafka", Context: "streams"}, alice)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	bob := Identity{Name: "Bob"}
	updated, err := svc.Update(ctx, created.ID,
		json.RawMessage(`{"title":"Use Kafka everywhere","status":"accepted","id":"hijack","version":"9.9"}`),
		"accepted after review", bob)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("id changed to %q", updated.ID)
	}
	if updated.Version != "1.1" || updated.Status != StatusAccepted || updated.Context != "streams" {
		t.Fatalf("unexpected updated adr: %+v", updated.Record)
	}
	if len(updated.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(updated.History))
	}
	entry := updated.History[0]
	if entry.Version != "1.0" || entry.Author != "Bob" || entry.Changes != "accepted after review" {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if entry.Snapshot.Title != "Use Kafka" || entry.Date != created.UpdatedAt {
		t.Fatalf("snapshot does not hold previous state: %+v", entry)
	}
	if backend.commits[0].commit.Message != "ADR-2025-0001: UPDATE Use Kafka everywhere" {
		t.Fatalf("unexpected commit message %q", backend.commits[0].commit.Message)
	}

	again, err := svc.Update(ctx, created.ID, json.RawMessage(`{"decision":"go"}`), "decide", bob)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if again.Version != "1.2" || len(again.History) != 2 || again.History[0].Version != "1.1" {
		t.Fatalf("history not prepended: version=%s history=%+v", again.Version, again.History)
	}
}

func TestUpdateMissing(t *testing.T) {
	svc := newTestService(newMemBackend())
	_, err := svc.Update(context.Background(), "2025-0404", json.RawMessage(`{}`), "", alice)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCommitsMessage(t *testing.T) {
	backend := newMemBackend()
	svc := newTestService(backend)
	ctx := context.Background()
	created, err := svc.Create(ctx, Record{Title: "Temp"}, alice)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Delete(ctx, created.ID, alice); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if backend.commits[0].commit.Message != "ADR-2025-0001: DELETE ADR" {
		t.Fatalf("unexpected commit message %q", backend.commits[0].commit.Message)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListSkipsUndecodableFiles(t *testing.T) {
	backend := newMemBackend()
	backend.files["adrs/2025-0001.json"] = []byte(`{"id":"2025-0001","title":"ok","status":"proposed"}`)
	backend.files["adrs/2025-0002.json"] = []byte(`not json`)
	backend.files["adrs/README.md"] = []byte(`# readme`)
	svc := newTestService(backend)

	adrs, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if diff := cmp.Diff([]string{"2025-0001"}, ids(adrs)); diff != "" {
		t.Fatalf("List() mismatch (-want +got):\n%s", diff)
	}

	backend.failList = errors.New("boom")
	adrs, err = svc.List(context.Background())
	if err != nil || len(adrs) != 0 {
		t.Fatalf("List() on listing failure = %v, %v; want empty, nil", adrs, err)
	}
}

func TestHistoryPairsCommitsWithContent(t *testing.T) {
	backend := newMemBackend()
	svc := newTestService(backend)
	ctx := context.Background()

	created, err := svc.Create(ctx, Record{Title: "v1"}, alice)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Update(ctx, created.ID, json.RawMessage(`{"title":"v2"}`), "", alice); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := svc.Update(ctx, created.ID, json.RawMessage(`{"title":"v3"}`), "", alice); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	// unrelated file commit must not show up
	if _, err := svc.Create(ctx, Record{Title: "other"}, alice); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// the middle revision cannot be fetched
	middle := backend.commits[2].commit.ID
	backend.failRead[middle+":adrs/2025-0001.json"] = errors.New("transient")

	history, err := svc.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	titles := make([]string, 0, len(history))
	for _, entry := range history {
		titles = append(titles, entry.ADR.Title)
		if entry.Author != "Alice" || entry.Commit == "" || entry.Date.IsZero() {
			t.Fatalf("missing commit metadata: %+v", entry)
		}
	}
	if diff := cmp.Diff([]string{"v3", "v1"}, titles); diff != "" {
		t.Fatalf("History() mismatch (-want +got):\n%s", diff)
	}
	if history[0].Message != "ADR-2025-0001: UPDATE v3" {
		t.Fatalf("unexpected message %q", history[0].Message)
	}
}

type failingCommits struct{ *memBackend }

func (f failingCommits) ListCommits(context.Context, string, string) ([]Commit, error) {
	return nil, errors.New("gitlab unavailable")
}

func TestHistoryListingFailureIsEmpty(t *testing.T) {
	svc := newTestService(failingCommits{newMemBackend()})
	history, err := svc.History(context.Background(), "2025-0001")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", history)
	}
}

func TestStatusAndExport(t *testing.T) {
	backend := newMemBackend()
	svc := newTestService(backend)
	ctx := context.Background()
	for _, title := range []string{"a", "b"} {
		if _, err := svc.Create(ctx, Record{Title: title}, alice); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.TotalCommits != 2 || status.Branch != "main" || status.Project.ID != "42" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LastCommit == nil || !strings.Contains(status.LastCommit.Message, "CREATE b") {
		t.Fatalf("unexpected last commit: %+v", status.LastCommit)
	}

	payload, err := svc.ExportRepository(ctx)
	if err != nil {
		t.Fatalf("ExportRepository() error = %v", err)
	}
	var dump RepositoryExport
	if err := json.Unmarshal(payload, &dump); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if dump.Timestamp != "2025-06-01T12:00:00.000Z" || len(dump.Repository.ADRs) != 2 || dump.Repository.Commits != 2 {
		t.Fatalf("unexpected export: %+v", dump)
	}
	if !strings.Contains(string(payload), "\n  \"repository\"") {
		t.Fatalf("export is not indented:\n%s", payload)
	}
}

func TestGetRejectsPathTraversal(t *testing.T) {
	svc := newTestService(newMemBackend())
	if _, err := svc.Get(context.Background(), "../secrets"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
