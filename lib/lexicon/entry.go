// Package lexicon matches text against a list of known spam phrases. The list is data: entries are
// either literal phrases or regular expressions, built in or loaded from readers, and the matcher
// stops on the first entry that hits.
package lexicon

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// Entry is a single lexicon item. Match receives the raw text and its normalized form.
type Entry interface {
	Match(raw, normalized string) bool
	String() string
}

// Literal is a phrase matched as a substring of normalized text.
type Literal struct {
	phrase string // normalized phrase
	orig   string
}

// NewLiteral makes a literal entry. The phrase is normalized the same way as the text it's matched against.
func NewLiteral(phrase string) Literal {
	return Literal{phrase: Normalize(phrase), orig: phrase}
}

// Match reports whether normalized text contains the phrase. Empty phrase never matches.
func (l Literal) Match(_, normalized string) bool {
	return l.phrase != "" && strings.Contains(normalized, l.phrase)
}

func (l Literal) String() string { return l.orig }

// Pattern is a regular expression matched against both raw and normalized text.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles expr into a pattern entry.
func NewPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return Pattern{re: re}, nil
}

// MustPattern is like NewPattern but panics on invalid expression. For built-in entries only.
func MustPattern(expr string) Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether the expression matches raw or normalized text.
func (p Pattern) Match(raw, normalized string) bool {
	return p.re.MatchString(raw) || p.re.MatchString(normalized)
}

func (p Pattern) String() string { return "/" + p.re.String() + "/" }

// ParseEntry parses a single lexicon line. Lines wrapped in slashes are patterns,
// double-quoted lines are literals with quotes removed, anything else is a literal as is.
func ParseEntry(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty entry")
	}
	if len(line) > 2 && strings.HasPrefix(line, "/") && strings.HasSuffix(line, "/") {
		return NewPattern(line[1 : len(line)-1])
	}
	if len(line) > 2 && strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) {
		line = line[1 : len(line)-1]
	}
	return NewLiteral(line), nil
}

// Normalize lowercases text and removes emoji, control and invisible format characters,
// so decorated variants of a phrase compare equal to the plain one.
func Normalize(text string) string {
	var result strings.Builder
	result.Grow(len(text))
	for _, r := range gomoji.RemoveEmojis(text) {
		// skip control and format characters
		if unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		// skip zero-width and invisible operator ranges
		if (r >= 0x200B && r <= 0x200F) || (r >= 0x2060 && r <= 0x206F) {
			continue
		}
		// skip variation selectors left after emoji removal
		if r >= 0xFE00 && r <= 0xFE0F {
			continue
		}
		result.WriteRune(unicode.ToLower(r))
	}
	return result.String()
}
