// Package spamcheck defines the data exchanged between the post extractor, the scoring engine and
// the callers: posts, authors, per-rule responses and the aggregated result.
package spamcheck

import (
	"fmt"
	"strings"
	"time"
)

// Badge is a verification badge type of an author. Empty value means no badge.
type Badge string

// enum of known badges
const (
	BadgeNone       Badge = ""
	BadgeBlue       Badge = "blue" // paid, self-serve verification
	BadgeBusiness   Badge = "business"
	BadgeGovernment Badge = "government"
	BadgeLegacy     Badge = "legacy" // verification granted before the paid program
)

// ParseBadge converts a badge name to Badge, case-insensitive. Unknown names are kept as is (lowercased),
// so the caller can still compare them against a configured label.
func ParseBadge(s string) Badge {
	return Badge(strings.ToLower(strings.TrimSpace(s)))
}

// Author is a post author, as seen by the extractor.
type Author struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ScreenName  string `json:"screen_name"`
	Description string `json:"description"`
	Badge       Badge  `json:"badge,omitempty"`
}

func (a Author) String() string {
	if a.ScreenName == "" {
		return fmt.Sprintf("%q", a.ID)
	}
	return fmt.Sprintf("%q (%s)", a.ScreenName, a.ID)
}

// Post is an immutable post record produced by the extractor.
// Language is the language code reported by the host, empty if unknown.
type Post struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Language  string    `json:"language,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorID returns id of the post author.
func (p *Post) AuthorID() string { return p.Author.ID }

// Validate checks required fields and returns *FieldError for the first missing one.
func (p *Post) Validate() error {
	if p.ID == "" {
		return &FieldError{Field: "id"}
	}
	if p.Author.ID == "" {
		return &FieldError{Field: "author.id"}
	}
	return nil
}

func (p *Post) String() string {
	return fmt.Sprintf("id:%s, author:%s, lang:%q, content:%q", p.ID, p.Author.String(), p.Language, p.Content)
}

// FieldError reports a missing or invalid required field of a post.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Response is a result of a single rule evaluation.
type Response struct {
	Name    string `json:"name"`    // name of the rule
	Spam    bool   `json:"spam"`    // true if the rule fired
	Weight  int    `json:"weight"`  // score added when fired
	Details string `json:"details"` // reason if fired, otherwise evaluation details
	Error   error  `json:"-"`       // error message, if any. Do not serialize it
}

func (r *Response) String() string {
	spamOrHam := "ham"
	if r.Spam {
		spamOrHam = "spam"
	}
	return fmt.Sprintf("%s: %s, %s", r.Name, spamOrHam, r.Details)
}

// Result is an aggregated score of a post.
// Reasons keeps details of fired rules in firing order, Checks keeps all evaluated rules.
type Result struct {
	Score   int        `json:"score"`
	Reasons []string   `json:"reasons"`
	Checks  []Response `json:"checks,omitempty"`
}

// Add appends a rule response and updates score and reasons if the rule fired.
func (r *Result) Add(resp Response) {
	r.Checks = append(r.Checks, resp)
	if resp.Spam {
		r.Score += resp.Weight
		r.Reasons = append(r.Reasons, resp.Details)
	}
}

// Flagged reports whether the score reaches the threshold.
func (r *Result) Flagged(threshold int) bool {
	return r.Score >= threshold
}

// ChecksToString converts a slice of checks to a string
func ChecksToString(checks []Response) string {
	elems := []string{}
	for _, r := range checks {
		elems = append(elems, "{"+r.String()+"}")
	}
	return fmt.Sprintf("[%s] ", strings.Join(elems, ", "))
}
