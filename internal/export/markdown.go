package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"adrmanager/internal/adr"

	"gopkg.in/yaml.v3"
)

type labels struct {
	Status        string
	Context       string
	Problem       string
	Decision      string
	Alternatives  string
	AltHeader     [4]string
	NoAlts        string
	Justification string
	Consequences  string
	Positive      string
	Negative      string
	Security      string
	Operability   string
	Plan          string
	Impact        string
	Conformity    string
	ConfHeader    [4]string
	NoConformity  string
	Monitoring    string
	Appendices    string
	Footer        string
	DateLayout    string
	Statuses      map[adr.Status]string
}

var catalog = map[Language]labels{
	LangFR: {
		Status:        "Statut",
		Context:       "Contexte",
		Problem:       "Problématique",
		Decision:      "Décision",
		Alternatives:  "Alternatives étudiées",
		AltHeader:     [4]string{"Alternative", "Avantages", "Inconvénients", "Raisons du rejet"},
		NoAlts:        "Aucune alternative documentée.",
		Justification: "Justification",
		Consequences:  "Conséquences",
		Positive:      "✅ Positives",
		Negative:      "⚠️ Négatives / Limites",
		Security:      "Sécurité",
		Operability:   "Opérabilité & SRE",
		Plan:          "Plan de mise en œuvre",
		Impact:        "Impact",
		Conformity:    "Conformité",
		ConfHeader:    [4]string{"Critère", "OK", "À traiter", "Commentaire"},
		NoConformity:  "Aucun critère de conformité défini.",
		Monitoring:    "Suivi et évolutivité",
		Appendices:    "Appendices",
		Footer:        "*Généré automatiquement le %s à partir de l'ADR Manager*",
		DateLayout:    "02/01/2006",
		Statuses: map[adr.Status]string{
			adr.StatusProposed:   "Proposée",
			adr.StatusAccepted:   "Validée",
			adr.StatusRejected:   "Rejetée",
			adr.StatusSuperseded: "Supplantée",
		},
	},
	LangEN: {
		Status:        "Status",
		Context:       "Context",
		Problem:       "Problem",
		Decision:      "Decision",
		Alternatives:  "Alternatives considered",
		AltHeader:     [4]string{"Alternative", "Advantages", "Disadvantages", "Rejection reason"},
		NoAlts:        "No alternatives documented.",
		Justification: "Justification",
		Consequences:  "Consequences",
		Positive:      "✅ Positive",
		Negative:      "⚠️ Negative / Limitations",
		Security:      "Security",
		Operability:   "Operability & SRE",
		Plan:          "Implementation plan",
		Impact:        "Impact",
		Conformity:    "Conformity",
		ConfHeader:    [4]string{"Criterion", "OK", "To address", "Comment"},
		NoConformity:  "No conformity criteria defined.",
		Monitoring:    "Monitoring and evolution",
		Appendices:    "Appendices",
		Footer:        "*Generated automatically on %s by ADR Manager*",
		DateLayout:    "January 2, 2006",
		Statuses: map[adr.Status]string{
			adr.StatusProposed:   "Proposed",
			adr.StatusAccepted:   "Accepted",
			adr.StatusRejected:   "Rejected",
			adr.StatusSuperseded: "Superseded",
		},
	},
}

func labelsFor(lang Language) labels {
	if l, ok := catalog[lang]; ok {
		return l
	}
	return catalog[LangFR]
}

type person struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
	Team string `yaml:"team"`
}

type frontMatter struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Slug       string   `yaml:"slug"`
	Status     string   `yaml:"status"`
	Date       string   `yaml:"date"`
	Version    string   `yaml:"version"`
	Authors    []person `yaml:"authors"`
	Reviewers  []person `yaml:"reviewers"`
	Tags       []string `yaml:"tags,flow"`
	Supersedes []string `yaml:"supersedes,flow"`
	Related    []string `yaml:"related,flow"`
}

func newFrontMatter(r adr.Record) frontMatter {
	fm := frontMatter{
		ID:         r.ID,
		Title:      r.Title,
		Slug:       r.Slug,
		Status:     string(r.Status),
		Date:       r.Date,
		Version:    r.Version,
		Authors:    make([]person, 0, len(r.Authors)),
		Reviewers:  make([]person, 0, len(r.Reviewers)),
		Tags:       nonNil(r.Tags),
		Supersedes: nonNil(r.Supersedes),
		Related:    nonNil(r.Related),
	}
	for _, a := range r.Authors {
		fm.Authors = append(fm.Authors, person{Name: a.Name, Role: a.Role, Team: a.Team})
	}
	for _, rv := range r.Reviewers {
		fm.Reviewers = append(fm.Reviewers, person{Name: rv.Name, Role: rv.Role, Team: rv.Team})
	}
	return fm
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Markdown renders an ADR as a Markdown document with YAML front-matter.
func Markdown(r adr.Record, lang Language, generatedAt time.Time) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(newFrontMatter(r)); err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(markdownBody(r, lang, generatedAt))
	return buf.String(), nil
}

// markdownBody is the document without front-matter; HTML rendering starts
// from it.
func markdownBody(r adr.Record, lang Language, generatedAt time.Time) string {
	l := labelsFor(lang)
	var b strings.Builder

	fmt.Fprintf(&b, "# ADR-%s - %s\n\n", r.ID, r.Title)

	status := l.Statuses[r.Status]
	if status == "" {
		status = string(r.Status)
	}
	section(&b, 1, l.Status, status)
	section(&b, 2, l.Context, r.Context)
	section(&b, 3, l.Problem, r.Problem)
	section(&b, 4, l.Decision, r.Decision)

	fmt.Fprintf(&b, "## 5. %s\n\n", l.Alternatives)
	if len(r.Alternatives) == 0 {
		b.WriteString(l.NoAlts + "\n\n")
	} else {
		tableHeader(&b, l.AltHeader)
		for _, alt := range r.Alternatives {
			tableRow(&b, alt.Name, alt.Advantages, alt.Disadvantages, alt.RejectionReason)
		}
		b.WriteString("\n")
	}

	section(&b, 6, l.Justification, r.Justification)

	fmt.Fprintf(&b, "## 7. %s\n\n", l.Consequences)
	fmt.Fprintf(&b, "### %s\n\n%s\n\n", l.Positive, r.PositiveConsequences)
	fmt.Fprintf(&b, "### %s\n\n%s\n\n", l.Negative, r.NegativeConsequences)

	section(&b, 8, l.Security, r.Security)
	section(&b, 9, l.Operability, r.Operability)
	section(&b, 10, l.Plan, r.ImplementationPlan)
	section(&b, 11, l.Impact, r.Impact)

	fmt.Fprintf(&b, "## 12. %s\n\n", l.Conformity)
	if len(r.Conformity) == 0 {
		b.WriteString(l.NoConformity + "\n\n")
	} else {
		tableHeader(&b, l.ConfHeader)
		for _, item := range r.Conformity {
			ok, todo := "⬜", "✅"
			if item.Status == "ok" {
				ok, todo = "✅", "⬜"
			}
			tableRow(&b, item.Criterion, ok, todo, item.Comment)
		}
		b.WriteString("\n")
	}

	section(&b, 13, l.Monitoring, r.Monitoring)
	if strings.TrimSpace(r.Appendices) != "" {
		section(&b, 14, l.Appendices, r.Appendices)
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, l.Footer+"\n", generatedAt.Format(l.DateLayout))
	return b.String()
}

func section(b *strings.Builder, n int, title, content string) {
	fmt.Fprintf(b, "## %d. %s\n\n%s\n\n", n, title, content)
}

func tableHeader(b *strings.Builder, cols [4]string) {
	tableRow(b, cols[:]...)
	b.WriteString("|")
	for _, c := range cols {
		b.WriteString(strings.Repeat("-", len([]rune(c))+2))
		b.WriteString("|")
	}
	b.WriteString("\n")
}

// tableRow keeps cells on one line so multi-line text cannot break the table.
func tableRow(b *strings.Builder, cells ...string) {
	b.WriteString("|")
	for _, c := range cells {
		c = strings.ReplaceAll(c, "\n", " ")
		c = strings.ReplaceAll(c, "|", "\\|")
		b.WriteString(" " + c + " |")
	}
	b.WriteString("\n")
}
