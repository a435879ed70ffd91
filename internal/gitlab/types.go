package gitlab

import (
	"time"

	gl "github.com/xanzy/go-gitlab"
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
	State     string `json:"state"`
}

type Access struct {
	AccessLevel int `json:"access_level"`
}

type Permissions struct {
	ProjectAccess *Access `json:"project_access"`
	GroupAccess   *Access `json:"group_access"`
}

type Project struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	NameWithNamespace string       `json:"name_with_namespace"`
	Path              string       `json:"path"`
	PathWithNamespace string       `json:"path_with_namespace"`
	WebURL            string       `json:"web_url"`
	DefaultBranch     string       `json:"default_branch"`
	Permissions       *Permissions `json:"permissions,omitempty"`
}

// AccessLevel is the strongest of the caller's project and group access.
func (p Project) AccessLevel() int {
	if p.Permissions == nil {
		return 0
	}
	level := 0
	if p.Permissions.ProjectAccess != nil && p.Permissions.ProjectAccess.AccessLevel > level {
		level = p.Permissions.ProjectAccess.AccessLevel
	}
	if p.Permissions.GroupAccess != nil && p.Permissions.GroupAccess.AccessLevel > level {
		level = p.Permissions.GroupAccess.AccessLevel
	}
	return level
}

type TreeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
	Mode string `json:"mode"`
}

type Commit struct {
	ID            string    `json:"id"`
	ShortID       string    `json:"short_id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AuthorName    string    `json:"author_name"`
	AuthorEmail   string    `json:"author_email"`
	AuthoredDate  time.Time `json:"authored_date"`
	CommitterName string    `json:"committer_name"`
	CommittedDate time.Time `json:"committed_date"`
	CreatedAt     time.Time `json:"created_at"`
	WebURL        string    `json:"web_url"`
	ParentIDs     []string  `json:"parent_ids"`
}

type Diff struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// FileOptions carries the commit attributes of a file write.
type FileOptions struct {
	Branch        string
	Content       []byte
	CommitMessage string
	AuthorName    string
	AuthorEmail   string
}

func userFrom(u *gl.User) User {
	if u == nil {
		return User{}
	}
	return User{
		ID:        int64(u.ID),
		Username:  u.Username,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		WebURL:    u.WebURL,
		State:     u.State,
	}
}

func projectFrom(p *gl.Project) Project {
	if p == nil {
		return Project{}
	}
	out := Project{
		ID:                int64(p.ID),
		Name:              p.Name,
		NameWithNamespace: p.NameWithNamespace,
		Path:              p.Path,
		PathWithNamespace: p.PathWithNamespace,
		WebURL:            p.WebURL,
		DefaultBranch:     p.DefaultBranch,
	}
	if perms := p.Permissions; perms != nil {
		out.Permissions = &Permissions{}
		if perms.ProjectAccess != nil {
			out.Permissions.ProjectAccess = &Access{AccessLevel: int(perms.ProjectAccess.AccessLevel)}
		}
		if perms.GroupAccess != nil {
			out.Permissions.GroupAccess = &Access{AccessLevel: int(perms.GroupAccess.AccessLevel)}
		}
	}
	return out
}

func commitFrom(c *gl.Commit) Commit {
	out := Commit{
		ID:            c.ID,
		ShortID:       c.ShortID,
		Title:         c.Title,
		Message:       c.Message,
		AuthorName:    c.AuthorName,
		AuthorEmail:   c.AuthorEmail,
		CommitterName: c.CommitterName,
		WebURL:        c.WebURL,
		ParentIDs:     c.ParentIDs,
	}
	if c.AuthoredDate != nil {
		out.AuthoredDate = *c.AuthoredDate
	}
	if c.CommittedDate != nil {
		out.CommittedDate = *c.CommittedDate
	}
	if c.CreatedAt != nil {
		out.CreatedAt = *c.CreatedAt
	}
	return out
}
