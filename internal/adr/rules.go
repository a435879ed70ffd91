package adr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NextID returns the next identifier of the form YEAR-NNNN for the year of
// now. Only ids of that year count; the sequence restarts at 0001 each year.
func NextID(ids []string, now time.Time) string {
	year := now.Year()
	prefix := fmt.Sprintf("%d-", year)
	highest := 0
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%d-%04d", year, highest+1)
}

// BumpVersion adds one tenth to a decimal version string. The addition is
// done on the digits themselves, so 1.9 becomes 2.0, 1.25 becomes 1.35 and
// majors of any length carry without overflow. An empty version counts as
// 1.0. Anything else that is not a plain decimal is an error.
func BumpVersion(version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = "1.0"
	}
	major, frac, ok := splitVersion(version)
	if !ok {
		return "", fmt.Errorf("%w: unparseable version %q", ErrInvalid, version)
	}
	if frac == "" {
		frac = "0"
	}

	digits := []byte(major + frac)
	width := len(major)
	i := width
	for ; i >= 0; i-- {
		if digits[i] < '9' {
			digits[i]++
			break
		}
		digits[i] = '0'
	}
	if i < 0 {
		digits = append([]byte{'1'}, digits...)
		width++
	}
	return string(digits[:width]) + "." + string(digits[width:]), nil
}

func splitVersion(version string) (string, string, bool) {
	major, frac, hasFrac := strings.Cut(version, ".")
	if !allDigits(major) || (hasFrac && !allDigits(frac)) {
		return "", "", false
	}
	major = strings.TrimLeft(major, "0")
	if major == "" {
		major = "0"
	}
	return major, frac, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Slugify lowercases the title, strips accents and joins words with dashes.
func Slugify(title string) string {
	decomposed := norm.NFD.String(strings.ToLower(title))
	var b strings.Builder
	dash := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (f Filter) IsZero() bool {
	return f.Search == "" && f.Status == "" && f.Author == "" && len(f.Tags) == 0 && f.DateFrom == "" && f.DateTo == ""
}

// Match applies every non-empty criterion; all of them must hold.
func (f Filter) Match(a ADR) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !containsFold(a.ID, needle) &&
			!containsFold(a.Title, needle) &&
			!containsFold(a.Context, needle) &&
			!containsFold(a.Decision, needle) {
			return false
		}
	}
	if f.Status != "" && string(a.Status) != f.Status {
		return false
	}
	if f.Author != "" {
		needle := strings.ToLower(f.Author)
		found := false
		for _, author := range a.Authors {
			if containsFold(author.Name, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 && !anyTag(a.Tags, f.Tags) {
		return false
	}
	if f.DateFrom != "" && dateKey(a.Date) < dateKey(f.DateFrom) {
		return false
	}
	if f.DateTo != "" && dateKey(a.Date) > dateKey(f.DateTo) {
		return false
	}
	return true
}

func FilterADRs(adrs []ADR, f Filter) []ADR {
	out := make([]ADR, 0, len(adrs))
	for _, a := range adrs {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// dateKey keeps the YYYY-MM-DD prefix so timestamps and plain dates compare
// on the calendar day.
func dateKey(value string) string {
	if len(value) > 10 {
		return value[:10]
	}
	return value
}

type Dashboard struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
	Recent   []ADR          `json:"recent"`
}

const dashboardRecent = 5

// Summarize counts records per status and keeps the most recently updated.
func Summarize(adrs []ADR) Dashboard {
	d := Dashboard{Total: len(adrs), ByStatus: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		d.ByStatus[s] = 0
	}
	for _, a := range adrs {
		d.ByStatus[a.Status]++
	}
	recent := append([]ADR(nil), adrs...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].UpdatedAt > recent[j].UpdatedAt
	})
	if len(recent) > dashboardRecent {
		recent = recent[:dashboardRecent]
	}
	d.Recent = recent
	return d
}
