package gitlab

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"adrmanager/internal/adr"
)

// ProjectFiles exposes one GitLab project as an adr.Backend.
type ProjectFiles struct {
	client    *Client
	projectID string
}

func (c *Client) ProjectFiles(projectID string) *ProjectFiles {
	return &ProjectFiles{client: c, projectID: projectID}
}

var _ adr.Backend = (*ProjectFiles)(nil)

func (p *ProjectFiles) ListFiles(ctx context.Context, dir, ref string) ([]string, error) {
	entries, err := p.client.Tree(ctx, p.projectID, dir, ref)
	if err != nil {
		return nil, translate(err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != "blob" || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		paths = append(paths, entry.Path)
	}
	return paths, nil
}

func (p *ProjectFiles) ReadFile(ctx context.Context, filePath, ref string) ([]byte, error) {
	data, err := p.client.RawFile(ctx, p.projectID, filePath, ref)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

func (p *ProjectFiles) CreateFile(ctx context.Context, change adr.FileChange) error {
	return translate(p.client.CreateFile(ctx, p.projectID, change.Path, fileOptions(change)))
}

func (p *ProjectFiles) UpdateFile(ctx context.Context, change adr.FileChange) error {
	return translate(p.client.UpdateFile(ctx, p.projectID, change.Path, fileOptions(change)))
}

func (p *ProjectFiles) DeleteFile(ctx context.Context, change adr.FileChange) error {
	return translate(p.client.DeleteFile(ctx, p.projectID, change.Path, fileOptions(change)))
}

func (p *ProjectFiles) ListCommits(ctx context.Context, filePath, ref string) ([]adr.Commit, error) {
	commits, err := p.client.Commits(ctx, p.projectID, ref, filePath)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]adr.Commit, 0, len(commits))
	for _, c := range commits {
		out = append(out, adr.Commit{
			ID:          c.ID,
			ShortID:     c.ShortID,
			Title:       c.Title,
			Message:     c.Message,
			AuthorName:  c.AuthorName,
			AuthorEmail: c.AuthorEmail,
			CommittedAt: c.CommittedDate,
		})
	}
	return out, nil
}

func (p *ProjectFiles) Project(ctx context.Context) (adr.Project, error) {
	project, err := p.client.Project(ctx, p.projectID)
	if err != nil {
		return adr.Project{}, translate(err)
	}
	return adr.Project{
		ID:                strconv.FormatInt(project.ID, 10),
		Name:              project.Name,
		PathWithNamespace: project.PathWithNamespace,
		WebURL:            project.WebURL,
		DefaultBranch:     project.DefaultBranch,
	}, nil
}

func (p *ProjectFiles) CommitDiff(ctx context.Context, sha string) ([]adr.FileDiff, error) {
	diffs, err := p.client.CommitDiff(ctx, p.projectID, sha)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]adr.FileDiff, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, adr.FileDiff{
			OldPath:     d.OldPath,
			NewPath:     d.NewPath,
			Diff:        d.Diff,
			NewFile:     d.NewFile,
			RenamedFile: d.RenamedFile,
			DeletedFile: d.DeletedFile,
		})
	}
	return out, nil
}

func fileOptions(change adr.FileChange) FileOptions {
	return FileOptions{
		Branch:        change.Branch,
		Content:       change.Content,
		CommitMessage: change.Message,
		AuthorName:    change.Author.Name,
		AuthorEmail:   change.Author.Email,
	}
}

// translate maps GitLab status codes onto the adr sentinels while keeping the
// original error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return fmt.Errorf("%w: %w", adr.ErrNotFound, err)
	case IsConflict(err):
		return fmt.Errorf("%w: %w", adr.ErrConflict, err)
	default:
		return err
	}
}
