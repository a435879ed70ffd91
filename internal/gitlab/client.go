// Package gitlab adapts the go-gitlab SDK to the handful of REST v4 calls the
// ADR manager relies on.
package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gl "github.com/xanzy/go-gitlab"
)

const (
	DefaultTimeout = 10 * time.Second
	perPage        = 100
	// maxPages bounds pagination so a misbehaving server cannot loop forever.
	maxPages = 500
	// retryMax applies to 429 and 5xx answers; 401 is handled by Transport.
	retryMax = 2
)

// ErrorResponse is a non-2xx GitLab answer.
type ErrorResponse struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gitlab %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("gitlab %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func statusOf(err error) int {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool     { return statusOf(err) == http.StatusNotFound }
func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }

// IsConflict reports a write against an existing path. GitLab answers 400
// with "already exists" for file creation and 409 elsewhere.
func IsConflict(err error) bool {
	var resp *ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	if resp.StatusCode == http.StatusConflict {
		return true
	}
	return resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(resp.Message), "already exists")
}

type Client struct {
	api *gl.Client
}

// NewClient targets <gitlabURL>/api/v4. The token source authenticates every
// request; see Transport for the refresh behaviour.
func NewClient(gitlabURL string, source TokenSource, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClientWithHTTP(gitlabURL, &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Source: source},
	})
}

// NewClientWithHTTP uses a preconfigured http.Client as is. Its transport is
// expected to set the Authorization header.
func NewClientWithHTTP(gitlabURL string, httpClient *http.Client) (*Client, error) {
	api, err := gl.NewOAuthClient("",
		gl.WithBaseURL(strings.TrimRight(gitlabURL, "/")),
		gl.WithHTTPClient(httpClient),
		gl.WithCustomRetryMax(retryMax),
	)
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}
	return &Client{api: api}, nil
}

func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	user, _, err := c.api.Users.CurrentUser(gl.WithContext(ctx))
	if err != nil {
		return User{}, wrapError("get user", err)
	}
	return userFrom(user), nil
}

// Projects lists the projects the caller is a member of.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	opt := &gl.ListProjectsOptions{
		ListOptions: gl.ListOptions{PerPage: perPage, Page: 1},
		Membership:  gl.Ptr(true),
		Simple:      gl.Ptr(true),
	}
	out := make([]Project, 0)
	for i := 0; i < maxPages && opt.Page != 0; i++ {
		batch, resp, err := c.api.Projects.ListProjects(opt, gl.WithContext(ctx))
		if err != nil {
			return nil, wrapError("list projects", err)
		}
		for _, p := range batch {
			out = append(out, projectFrom(p))
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) Project(ctx context.Context, projectID string) (Project, error) {
	project, _, err := c.api.Projects.GetProject(projectID, nil, gl.WithContext(ctx))
	if err != nil {
		return Project{}, wrapError("get project", err)
	}
	return projectFrom(project), nil
}

// Tree lists the direct children of dir at ref.
func (c *Client) Tree(ctx context.Context, projectID, dir, ref string) ([]TreeEntry, error) {
	opt := &gl.ListTreeOptions{
		ListOptions: gl.ListOptions{PerPage: perPage, Page: 1},
		Path:        gl.Ptr(dir),
		Recursive:   gl.Ptr(false),
	}
	if ref != "" {
		opt.Ref = gl.Ptr(ref)
	}
	out := make([]TreeEntry, 0)
	for i := 0; i < maxPages && opt.Page != 0; i++ {
		nodes, resp, err := c.api.Repositories.ListTree(projectID, opt, gl.WithContext(ctx))
		if err != nil {
			return nil, wrapError("list tree", err)
		}
		for _, n := range nodes {
			out = append(out, TreeEntry{ID: n.ID, Name: n.Name, Type: n.Type, Path: n.Path, Mode: n.Mode})
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// RawFile returns the content of filePath at ref.
func (c *Client) RawFile(ctx context.Context, projectID, filePath, ref string) ([]byte, error) {
	opt := &gl.GetRawFileOptions{}
	if ref != "" {
		opt.Ref = gl.Ptr(ref)
	}
	data, _, err := c.api.RepositoryFiles.GetRawFile(projectID, filePath, opt, gl.WithContext(ctx))
	if err != nil {
		return nil, wrapError("read file", err)
	}
	return data, nil
}

func (c *Client) CreateFile(ctx context.Context, projectID, filePath string, opts FileOptions) error {
	_, _, err := c.api.RepositoryFiles.CreateFile(projectID, filePath, &gl.CreateFileOptions{
		Branch:        gl.Ptr(opts.Branch),
		Encoding:      gl.Ptr("base64"),
		Content:       gl.Ptr(base64.StdEncoding.EncodeToString(opts.Content)),
		CommitMessage: gl.Ptr(opts.CommitMessage),
		AuthorName:    optional(opts.AuthorName),
		AuthorEmail:   optional(opts.AuthorEmail),
	}, gl.WithContext(ctx))
	return wrapError("create file", err)
}

func (c *Client) UpdateFile(ctx context.Context, projectID, filePath string, opts FileOptions) error {
	_, _, err := c.api.RepositoryFiles.UpdateFile(projectID, filePath, &gl.UpdateFileOptions{
		Branch:        gl.Ptr(opts.Branch),
		Encoding:      gl.Ptr("base64"),
		Content:       gl.Ptr(base64.StdEncoding.EncodeToString(opts.Content)),
		CommitMessage: gl.Ptr(opts.CommitMessage),
		AuthorName:    optional(opts.AuthorName),
		AuthorEmail:   optional(opts.AuthorEmail),
	}, gl.WithContext(ctx))
	return wrapError("update file", err)
}

func (c *Client) DeleteFile(ctx context.Context, projectID, filePath string, opts FileOptions) error {
	_, err := c.api.RepositoryFiles.DeleteFile(projectID, filePath, &gl.DeleteFileOptions{
		Branch:        gl.Ptr(opts.Branch),
		CommitMessage: gl.Ptr(opts.CommitMessage),
		AuthorName:    optional(opts.AuthorName),
		AuthorEmail:   optional(opts.AuthorEmail),
	}, gl.WithContext(ctx))
	return wrapError("delete file", err)
}

// Commits lists commits on ref, optionally restricted to one path, newest
// first.
func (c *Client) Commits(ctx context.Context, projectID, ref, filePath string) ([]Commit, error) {
	opt := &gl.ListCommitsOptions{ListOptions: gl.ListOptions{PerPage: perPage, Page: 1}}
	if ref != "" {
		opt.RefName = gl.Ptr(ref)
	}
	if filePath != "" {
		opt.Path = gl.Ptr(filePath)
	}
	out := make([]Commit, 0)
	for i := 0; i < maxPages && opt.Page != 0; i++ {
		batch, resp, err := c.api.Commits.ListCommits(projectID, opt, gl.WithContext(ctx))
		if err != nil {
			return nil, wrapError("list commits", err)
		}
		for _, commit := range batch {
			out = append(out, commitFrom(commit))
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) CommitDiff(ctx context.Context, projectID, sha string) ([]Diff, error) {
	opt := &gl.GetCommitDiffOptions{ListOptions: gl.ListOptions{PerPage: perPage, Page: 1}}
	out := make([]Diff, 0)
	for i := 0; i < maxPages && opt.Page != 0; i++ {
		batch, resp, err := c.api.Commits.GetCommitDiff(projectID, sha, opt, gl.WithContext(ctx))
		if err != nil {
			return nil, wrapError("get commit diff", err)
		}
		for _, d := range batch {
			out = append(out, Diff{
				OldPath:     d.OldPath,
				NewPath:     d.NewPath,
				Diff:        d.Diff,
				NewFile:     d.NewFile,
				RenamedFile: d.RenamedFile,
				DeletedFile: d.DeletedFile,
			})
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// wrapError turns the SDK's error response into ErrorResponse so callers can
// switch on the status code without importing the SDK.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *gl.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		out := &ErrorResponse{StatusCode: apiErr.Response.StatusCode, Message: apiErr.Message}
		if req := apiErr.Response.Request; req != nil {
			out.Method = req.Method
			out.Path = req.URL.Path
		}
		return out
	}
	return fmt.Errorf("gitlab %s: %w", op, err)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return gl.Ptr(value)
}
