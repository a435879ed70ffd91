// Package gitrepo implements the ADR file backend on a local git repository.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"adrmanager/internal/adr"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

const (
	mainBranch  = "main"
	readmeName  = "README.md"
	emailDomain = "local.adr-manager"
)

type Repository struct {
	root string
	mu   sync.Mutex
	repo *git.Repository
	now  func() time.Time
}

var _ adr.Backend = (*Repository)(nil)

// Open opens the repository at root, initializing it with a README commit on
// main when the directory holds no repository yet.
func Open(root string, owner adr.Identity) (*Repository, error) {
	r := &Repository{root: root, now: time.Now}
	repo, err := git.PlainOpen(root)
	if err == nil {
		r.repo = repo
		return r, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := r.initialize(owner); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) initialize(owner adr.Identity) error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(r.root, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	readme := "# Architecture Decision Records\n\nDecisions are stored as JSON files under adrs/.\n"
	if err := os.WriteFile(filepath.Join(r.root, readmeName), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	if _, err := worktree.Add(readmeName); err != nil {
		return fmt.Errorf("git add readme: %w", err)
	}
	hash, err := worktree.Commit("Initial commit", &git.CommitOptions{Author: r.signature(owner)})
	if err != nil {
		return fmt.Errorf("commit readme: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	if err := repo.Storer.RemoveReference(plumbing.Master); err != nil {
		return fmt.Errorf("drop master ref: %w", err)
	}
	r.repo = repo
	return nil
}

func (r *Repository) ListFiles(_ context.Context, dir, ref string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, err := r.treeAt(ref)
	if err != nil {
		return nil, err
	}
	dir = strings.Trim(dir, "/")
	if dir != "" {
		tree, err = tree.Tree(dir)
		if err != nil {
			if errors.Is(err, object.ErrDirectoryNotFound) {
				return nil, fmt.Errorf("%w: directory %s", adr.ErrNotFound, dir)
			}
			return nil, fmt.Errorf("read tree %s: %w", dir, err)
		}
	}
	paths := make([]string, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if !entry.Mode.IsFile() || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		paths = append(paths, path.Join(dir, entry.Name))
	}
	return paths, nil
}

func (r *Repository) ReadFile(_ context.Context, filePath, ref string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commitObj, err := r.commitAt(ref)
	if err != nil {
		return nil, err
	}
	return readFileFromCommit(commitObj, filePath)
}

func (r *Repository) CreateFile(_ context.Context, change adr.FileChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkout(change.Branch); err != nil {
		return err
	}
	if r.exists(change.Path) {
		return fmt.Errorf("%w: %s", adr.ErrConflict, change.Path)
	}
	return r.write(change)
}

func (r *Repository) UpdateFile(_ context.Context, change adr.FileChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkout(change.Branch); err != nil {
		return err
	}
	if !r.exists(change.Path) {
		return fmt.Errorf("%w: %s", adr.ErrNotFound, change.Path)
	}
	return r.write(change)
}

func (r *Repository) DeleteFile(_ context.Context, change adr.FileChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkout(change.Branch); err != nil {
		return err
	}
	if !r.exists(change.Path) {
		return fmt.Errorf("%w: %s", adr.ErrNotFound, change.Path)
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Remove(change.Path); err != nil {
		return fmt.Errorf("git rm %s: %w", change.Path, err)
	}
	if _, err := worktree.Commit(change.Message, &git.CommitOptions{Author: r.signature(change.Author)}); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (r *Repository) ListCommits(_ context.Context, filePath, ref string) ([]adr.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	opts := &git.LogOptions{From: hash}
	if filePath != "" {
		opts.FileName = &filePath
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]adr.Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (r *Repository) Project(context.Context) (adr.Project, error) {
	abs, err := filepath.Abs(r.root)
	if err != nil {
		abs = r.root
	}
	name := filepath.Base(abs)
	return adr.Project{
		ID:                name,
		Name:              name,
		PathWithNamespace: abs,
		WebURL:            "file://" + filepath.ToSlash(abs),
		DefaultBranch:     mainBranch,
	}, nil
}

// CommitDiff compares a commit with its first parent, or with the empty tree
// for a root commit.
func (r *Repository) CommitDiff(_ context.Context, sha string) ([]adr.FileDiff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash, err := r.resolve(sha)
	if err != nil {
		return nil, err
	}
	commitObj, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s", adr.ErrNotFound, sha)
	}
	to, err := commitObj.Tree()
	if err != nil {
		return nil, fmt.Errorf("read commit tree: %w", err)
	}
	var from *object.Tree
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("read parent commit: %w", err)
		}
		if from, err = parent.Tree(); err != nil {
			return nil, fmt.Errorf("read parent tree: %w", err)
		}
	}
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	diffs := make([]adr.FileDiff, 0, len(changes))
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, fmt.Errorf("classify change: %w", err)
		}
		patch, err := change.Patch()
		if err != nil {
			return nil, fmt.Errorf("build patch: %w", err)
		}
		diffs = append(diffs, adr.FileDiff{
			OldPath:     change.From.Name,
			NewPath:     change.To.Name,
			Diff:        patch.String(),
			NewFile:     action == merkletrie.Insert,
			DeletedFile: action == merkletrie.Delete,
			RenamedFile: action == merkletrie.Modify && change.From.Name != change.To.Name,
		})
	}
	return diffs, nil
}

func (r *Repository) write(change adr.FileChange) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	full := filepath.Join(r.root, filepath.FromSlash(change.Path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", change.Path, err)
	}
	if err := os.WriteFile(full, change.Content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", change.Path, err)
	}
	if _, err := worktree.Add(change.Path); err != nil {
		return fmt.Errorf("git add %s: %w", change.Path, err)
	}
	if _, err := worktree.Commit(change.Message, &git.CommitOptions{Author: r.signature(change.Author)}); err != nil {
		return fmt.Errorf("commit %s: %w", change.Path, err)
	}
	return nil
}

func (r *Repository) exists(filePath string) bool {
	_, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(filePath)))
	return err == nil
}

func (r *Repository) checkout(branchName string) error {
	if branchName == "" {
		branchName = mainBranch
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	head, err := r.repo.Head()
	if err == nil && head.Name() == plumbing.NewBranchReferenceName(branchName) {
		return nil
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := r.repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func (r *Repository) commitAt(ref string) (*object.Commit, error) {
	hash, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	commitObj, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s", adr.ErrNotFound, ref)
	}
	return commitObj, nil
}

func (r *Repository) treeAt(ref string) (*object.Tree, error) {
	commitObj, err := r.commitAt(ref)
	if err != nil {
		return nil, err
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	return tree, nil
}

// resolve accepts a branch name, a full hash or an abbreviated hash.
func (r *Repository) resolve(ref string) (plumbing.Hash, error) {
	if ref == "" {
		ref = mainBranch
	}
	if len(ref) == 40 && plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	resolved, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: revision %s", adr.ErrNotFound, ref)
	}
	return *resolved, nil
}

func (r *Repository) signature(who adr.Identity) *object.Signature {
	name := who.Name
	if name == "" {
		name = "ADR Manager"
	}
	email := who.Email
	if email == "" {
		email = fmt.Sprintf("%s@%s", sanitizeEmail(name), emailDomain)
	}
	return &object.Signature{Name: name, Email: email, When: r.now()}
}

func readFileFromCommit(commitObj *object.Commit, filePath string) ([]byte, error) {
	file, err := commitObj.File(filePath)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", adr.ErrNotFound, filePath)
		}
		return nil, fmt.Errorf("load %s from commit: %w", filePath, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}
	return data, nil
}

func toCommit(commitObj *object.Commit) adr.Commit {
	id := commitObj.Hash.String()
	return adr.Commit{
		ID:          id,
		ShortID:     id[:8],
		Title:       strings.SplitN(strings.TrimSpace(commitObj.Message), "\n", 2)[0],
		Message:     commitObj.Message,
		AuthorName:  commitObj.Author.Name,
		AuthorEmail: commitObj.Author.Email,
		CommittedAt: commitObj.Committer.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
