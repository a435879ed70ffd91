package adr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
)

// Identity is the person a change is attributed to.
type Identity struct {
	Name  string
	Email string
}

// FileChange describes one file write on a branch.
type FileChange struct {
	Path    string
	Branch  string
	Content []byte
	Message string
	Author  Identity
}

// Backend is the file-level view of a git repository. ReadFile and the write
// operations return ErrNotFound for missing files; CreateFile returns
// ErrConflict when the file already exists.
type Backend interface {
	ListFiles(ctx context.Context, dir, ref string) ([]string, error)
	ReadFile(ctx context.Context, filePath, ref string) ([]byte, error)
	CreateFile(ctx context.Context, change FileChange) error
	UpdateFile(ctx context.Context, change FileChange) error
	DeleteFile(ctx context.Context, change FileChange) error
	// ListCommits returns commits on ref touching filePath (all files when
	// empty), newest first.
	ListCommits(ctx context.Context, filePath, ref string) ([]Commit, error)
	Project(ctx context.Context) (Project, error)
	CommitDiff(ctx context.Context, sha string) ([]FileDiff, error)
}

const (
	DefaultPath   = "adrs"
	DefaultBranch = "main"

	createAttempts = 3
	timestampFmt   = "2006-01-02T15:04:05.000Z"
	dateFmt        = "2006-01-02"
)

// ignored on update: identity and audit fields are owned by the service.
var protectedFields = map[string]struct{}{
	"id":        {},
	"history":   {},
	"createdAt": {},
	"version":   {},
	"updatedAt": {},
}

type Service struct {
	backend Backend
	dir     string
	branch  string
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(backend Backend, dir, branch string, logger *slog.Logger) *Service {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = DefaultPath
	}
	if branch == "" {
		branch = DefaultBranch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		dir:     dir,
		branch:  branch,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Branch() string { return s.branch }

func (s *Service) filePath(id string) string {
	return path.Join(s.dir, id+".json")
}

func (s *Service) ids(ctx context.Context) ([]string, error) {
	files, err := s.backend.ListFiles(ctx, s.dir, s.branch)
	if err != nil {
		// a repository without the ADR directory yet holds no records
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, file := range files {
		base := path.Base(file)
		if !strings.HasSuffix(base, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(base, ".json"))
	}
	return ids, nil
}

// List loads every record under the ADR directory. Files that cannot be read
// or decoded are skipped; a listing failure yields an empty result.
func (s *Service) List(ctx context.Context) ([]ADR, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("list adr files failed", "dir", s.dir, "branch", s.branch, "error", err)
		return []ADR{}, nil
	}
	adrs := make([]ADR, 0, len(ids))
	for _, id := range ids {
		data, err := s.backend.ReadFile(ctx, s.filePath(id), s.branch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skip adr file", "path", s.filePath(id), "error", err)
			continue
		}
		record, err := Decode(data)
		if err != nil {
			s.logger.Warn("skip adr file", "path", s.filePath(id), "error", err)
			continue
		}
		adrs = append(adrs, record)
	}
	return adrs, nil
}

func (s *Service) Get(ctx context.Context, id string) (ADR, error) {
	if err := validateID(id); err != nil {
		return ADR{}, err
	}
	data, err := s.backend.ReadFile(ctx, s.filePath(id), s.branch)
	if err != nil {
		return ADR{}, fmt.Errorf("read adr %s: %w", id, err)
	}
	record, err := Decode(data)
	if err != nil {
		return ADR{}, fmt.Errorf("decode adr %s: %w", id, err)
	}
	return record, nil
}

// Create assigns the next id of the current year and commits the new file.
// When another writer claimed the id first the id is recomputed.
func (s *Service) Create(ctx context.Context, input Record, author Identity) (ADR, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return ADR{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if input.Status == "" {
		input.Status = StatusProposed
	}
	if !input.Status.Valid() {
		return ADR{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, input.Status)
	}

	now := s.now()
	if input.Version == "" {
		input.Version = "1.0"
	}
	if input.Date == "" {
		input.Date = now.Format(dateFmt)
	}
	if input.Slug == "" {
		input.Slug = Slugify(input.Title)
	}
	stamp := now.UTC().Format(timestampFmt)
	input.CreatedAt = stamp
	input.UpdatedAt = stamp

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		ids, err := s.ids(ctx)
		if err != nil {
			return ADR{}, fmt.Errorf("list adr ids: %w", err)
		}
		record := ADR{Record: input, History: []Version{}}
		record.ID = NextID(ids, now)

		payload, err := Encode(record)
		if err != nil {
			return ADR{}, fmt.Errorf("encode adr: %w", err)
		}
		err = s.backend.CreateFile(ctx, FileChange{
			Path:    s.filePath(record.ID),
			Branch:  s.branch,
			Content: payload,
			Message: CommitMessage(record.ID, "CREATE", record.Title),
			Author:  author,
		})
		if err == nil {
			record.Normalize()
			return record, nil
		}
		if !errors.Is(err, ErrConflict) {
			return ADR{}, fmt.Errorf("create adr %s: %w", record.ID, err)
		}
		s.logger.Info("adr id taken, retrying", "id", record.ID, "attempt", attempt+1)
		lastErr = err
	}
	return ADR{}, fmt.Errorf("create adr: %w", lastErr)
}

// Update shallow-merges updates over the stored record, pushes a snapshot of
// the previous state onto the history and bumps the version.
func (s *Service) Update(ctx context.Context, id string, updates json.RawMessage, changes string, author Identity) (ADR, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return ADR{}, err
	}
	merged, err := mergeRecord(current.Record, updates)
	if err != nil {
		return ADR{}, err
	}
	merged.Title = strings.TrimSpace(merged.Title)
	if merged.Title == "" {
		return ADR{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if !merged.Status.Valid() {
		return ADR{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, merged.Status)
	}

	snapshot := current.Record
	snapshot.normalize()
	entry := Version{
		Version:  current.Version,
		Date:     current.UpdatedAt,
		Author:   author.Name,
		Changes:  changes,
		Snapshot: snapshot,
	}

	merged.Version, err = BumpVersion(current.Version)
	if err != nil {
		return ADR{}, err
	}
	merged.UpdatedAt = s.now().UTC().Format(timestampFmt)
	updated := ADR{
		Record:  merged,
		History: append([]Version{entry}, current.History...),
	}

	payload, err := Encode(updated)
	if err != nil {
		return ADR{}, fmt.Errorf("encode adr: %w", err)
	}
	err = s.backend.UpdateFile(ctx, FileChange{
		Path:    s.filePath(id),
		Branch:  s.branch,
		Content: payload,
		Message: CommitMessage(id, "UPDATE", updated.Title),
		Author:  author,
	})
	if err != nil {
		return ADR{}, fmt.Errorf("update adr %s: %w", id, err)
	}
	updated.Normalize()
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string, author Identity) error {
	if err := validateID(id); err != nil {
		return err
	}
	err := s.backend.DeleteFile(ctx, FileChange{
		Path:    s.filePath(id),
		Branch:  s.branch,
		Message: CommitMessage(id, "DELETE", "ADR"),
		Author:  author,
	})
	if err != nil {
		return fmt.Errorf("delete adr %s: %w", id, err)
	}
	return nil
}

// History rebuilds the edit history of one record from the commits that
// touched its file, newest first. Commits whose content cannot be loaded are
// skipped, and a failed commit listing yields an empty history.
func (s *Service) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	filePath := s.filePath(id)
	commits, err := s.backend.ListCommits(ctx, filePath, s.branch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("list adr commits failed", "path", filePath, "error", err)
		return []HistoryEntry{}, nil
	}

	entries := make([]HistoryEntry, 0, len(commits))
	for _, commit := range commits {
		data, err := s.backend.ReadFile(ctx, filePath, commit.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skip history commit", "path", filePath, "commit", commit.ID, "error", err)
			continue
		}
		record, err := Decode(data)
		if err != nil {
			s.logger.Warn("skip history commit", "path", filePath, "commit", commit.ID, "error", err)
			continue
		}
		entries = append(entries, HistoryEntry{
			Commit:  commit.ID,
			Date:    commit.CommittedAt,
			Author:  commit.AuthorName,
			Message: commit.Message,
			ADR:     record,
		})
	}
	return entries, nil
}

// Status summarizes the configured branch. A failed commit listing counts as
// zero commits; the project lookup must succeed.
func (s *Service) Status(ctx context.Context) (RepoStatus, error) {
	commits, err := s.backend.ListCommits(ctx, "", s.branch)
	if err != nil {
		if ctx.Err() != nil {
			return RepoStatus{}, ctx.Err()
		}
		s.logger.Warn("list branch commits failed", "branch", s.branch, "error", err)
		commits = nil
	}
	project, err := s.backend.Project(ctx)
	if err != nil {
		return RepoStatus{}, fmt.Errorf("load project: %w", err)
	}
	status := RepoStatus{
		TotalCommits: len(commits),
		Project:      &project,
		Branch:       s.branch,
	}
	if len(commits) > 0 {
		last := commits[0]
		status.LastCommit = &last
	}
	return status, nil
}

type RepositoryExport struct {
	Timestamp  string         `json:"timestamp"`
	Repository RepositoryDump `json:"repository"`
}

type RepositoryDump struct {
	ADRs       []ADR    `json:"adrs"`
	Commits    int      `json:"commits"`
	LastCommit *Commit  `json:"lastCommit"`
	Project    *Project `json:"project"`
}

// ExportRepository dumps every record together with the branch status as
// pretty-printed JSON.
func (s *Service) ExportRepository(ctx context.Context) ([]byte, error) {
	adrs, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list adrs: %w", err)
	}
	dump := RepositoryDump{ADRs: adrs}
	status, err := s.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("repository status unavailable for export", "error", err)
	} else {
		dump.Commits = status.TotalCommits
		dump.LastCommit = status.LastCommit
		dump.Project = status.Project
	}
	payload, err := json.MarshalIndent(RepositoryExport{
		Timestamp:  s.now().UTC().Format(timestampFmt),
		Repository: dump,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return payload, nil
}

func (s *Service) CommitDiff(ctx context.Context, sha string) ([]FileDiff, error) {
	sha = strings.TrimSpace(sha)
	if sha == "" {
		return nil, fmt.Errorf("%w: commit sha is required", ErrInvalid)
	}
	diffs, err := s.backend.CommitDiff(ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("load commit diff %s: %w", sha, err)
	}
	return diffs, nil
}

// Filter loads every record and keeps those matching f.
func (s *Service) Filter(ctx context.Context, f Filter) ([]ADR, error) {
	adrs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterADRs(adrs, f), nil
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	adrs, err := s.List(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Summarize(adrs), nil
}

func CommitMessage(id, action, subject string) string {
	return fmt.Sprintf("ADR-%s: %s %s", id, action, subject)
}

func mergeRecord(current Record, updates json.RawMessage) (Record, error) {
	if len(updates) == 0 {
		return current, nil
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(updates, &patch); err != nil {
		return Record{}, fmt.Errorf("%w: updates must be a JSON object", ErrInvalid)
	}
	base, err := json.Marshal(current)
	if err != nil {
		return Record{}, fmt.Errorf("marshal current adr: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return Record{}, fmt.Errorf("unmarshal current adr: %w", err)
	}
	for key, value := range patch {
		if _, skip := protectedFields[key]; skip {
			continue
		}
		fields[key] = value
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("marshal merged adr: %w", err)
	}
	var out Record
	if err := json.Unmarshal(merged, &out); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	out.normalize()
	return out, nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: bad id %q", ErrInvalid, id)
	}
	return nil
}
