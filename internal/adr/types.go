// Package adr holds the Architecture Decision Record model and the adapter that
// stores records as JSON files in a git-backed repository.
package adr

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusProposed   Status = "proposed"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusSuperseded Status = "superseded"
)

// Statuses lists the valid statuses in display order.
var Statuses = []Status{StatusProposed, StatusAccepted, StatusRejected, StatusSuperseded}

func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusAccepted, StatusRejected, StatusSuperseded:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound = errors.New("adr not found")
	ErrConflict = errors.New("adr already exists")
	ErrInvalid  = errors.New("invalid adr")
)

type Author struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Team string `json:"team"`
}

type Reviewer struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Team string `json:"team"`
}

type Alternative struct {
	Name            string `json:"name"`
	Advantages      string `json:"advantages"`
	Disadvantages   string `json:"disadvantages"`
	RejectionReason string `json:"rejectionReason"`
}

type ConformityItem struct {
	Criterion string `json:"criterion"`
	Status    string `json:"status"` // "ok" or "todo"
	Comment   string `json:"comment"`
}

// Record is an ADR without its embedded history. Version snapshots store a
// Record so history never nests.
type Record struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	Status     Status     `json:"status"`
	Date       string     `json:"date"`
	Version    string     `json:"version"`
	Authors    []Author   `json:"authors"`
	Reviewers  []Reviewer `json:"reviewers"`
	Tags       []string   `json:"tags"`
	Supersedes []string   `json:"supersedes"`
	Related    []string   `json:"related"`

	Context              string           `json:"context"`
	Problem              string           `json:"problem"`
	Decision             string           `json:"decision"`
	Alternatives         []Alternative    `json:"alternatives"`
	Justification        string           `json:"justification"`
	PositiveConsequences string           `json:"positiveConsequences"`
	NegativeConsequences string           `json:"negativeConsequences"`
	Security             string           `json:"security"`
	Operability          string           `json:"operability"`
	ImplementationPlan   string           `json:"implementationPlan"`
	Impact               string           `json:"impact"`
	Conformity           []ConformityItem `json:"conformity"`
	Monitoring           string           `json:"monitoring"`
	Appendices           string           `json:"appendices"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type ADR struct {
	Record
	History []Version `json:"history"`
}

// Version is a snapshot of an ADR taken before an update.
type Version struct {
	Version  string `json:"version"`
	Date     string `json:"date"`
	Author   string `json:"author"`
	Changes  string `json:"changes"`
	Snapshot Record `json:"snapshot"`
}

type Filter struct {
	Search   string   `json:"search"`
	Status   string   `json:"status"`
	Author   string   `json:"author"`
	Tags     []string `json:"tags"`
	DateFrom string   `json:"dateFrom"`
	DateTo   string   `json:"dateTo"`
}

// HistoryEntry pairs a commit that touched an ADR file with the decoded file
// content at that commit.
type HistoryEntry struct {
	Commit  string    `json:"commit"`
	Date    time.Time `json:"date"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	ADR     ADR       `json:"adrData"`
}

type Commit struct {
	ID          string    `json:"id"`
	ShortID     string    `json:"shortId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail"`
	CommittedAt time.Time `json:"committedAt"`
}

type FileDiff struct {
	OldPath     string `json:"oldPath"`
	NewPath     string `json:"newPath"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"newFile"`
	RenamedFile bool   `json:"renamedFile"`
	DeletedFile bool   `json:"deletedFile"`
}

type Project struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"pathWithNamespace"`
	WebURL            string `json:"webUrl"`
	DefaultBranch     string `json:"defaultBranch"`
}

type RepoStatus struct {
	TotalCommits int      `json:"totalCommits"`
	LastCommit   *Commit  `json:"lastCommit"`
	Project      *Project `json:"project"`
	Branch       string   `json:"branch"`
}

// Normalize replaces nil lists with empty ones so encoded files and API
// payloads always carry arrays.
func (a *ADR) Normalize() {
	a.Record.normalize()
	if a.History == nil {
		a.History = []Version{}
	}
}

func (r *Record) normalize() {
	if r.Authors == nil {
		r.Authors = []Author{}
	}
	if r.Reviewers == nil {
		r.Reviewers = []Reviewer{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Supersedes == nil {
		r.Supersedes = []string{}
	}
	if r.Related == nil {
		r.Related = []string{}
	}
	if r.Alternatives == nil {
		r.Alternatives = []Alternative{}
	}
	if r.Conformity == nil {
		r.Conformity = []ConformityItem{}
	}
}

// Encode renders an ADR the way it is stored: two-space indented JSON with a
// trailing newline.
func Encode(a ADR) ([]byte, error) {
	a.Normalize()
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(payload, '\n'), nil
}
