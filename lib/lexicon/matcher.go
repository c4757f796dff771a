package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Matcher checks text against an ordered list of entries, thread-safe.
// Base entries are set on creation and always checked first, loaded entries can be replaced at runtime.
type Matcher struct {
	base   []Entry
	loaded []Entry
	lock   sync.RWMutex
}

// LoadResult is a result of loading lexicon entries.
type LoadResult struct {
	Literals int // number of literal phrases
	Patterns int // number of patterns
}

// Total returns number of loaded entries.
func (r LoadResult) Total() int { return r.Literals + r.Patterns }

// Defaults returns built-in spam phrases, reply-bait known from Japanese timelines:
// "I can get off to your profile" and "check my profile if you like", with their common spellings.
func Defaults() []Entry {
	return []Entry{
		NewLiteral("お前のプロフ抜けるわ"),
		NewLiteral("よかったらプロフ見て"),
		MustPattern(`(お前|おまえ)の?プロフ.{0,3}(抜け|ぬけ)`),
		MustPattern(`(良かったら|よかったら|ヨカッタラ).{0,3}(プロフ|ぷろふ).{0,4}(見て|みて|ミテ)`),
	}
}

// New makes a matcher with the given base entries.
func New(entries ...Entry) *Matcher {
	return &Matcher{base: entries}
}

// NewDefault makes a matcher with built-in entries.
func NewDefault() *Matcher {
	return New(Defaults()...)
}

// Matches reports whether any entry matches the text.
func (m *Matcher) Matches(text string) bool {
	_, ok := m.Find(text)
	return ok
}

// Find returns the first matching entry. Stops on the first hit.
func (m *Matcher) Find(text string) (Entry, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if len(m.base) == 0 && len(m.loaded) == 0 {
		return nil, false
	}

	norm := Normalize(text)
	for _, list := range [][]Entry{m.base, m.loaded} {
		for _, e := range list {
			if e.Match(text, norm) {
				return e, true
			}
		}
	}
	return nil, false
}

// Len returns the total number of entries.
func (m *Matcher) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.base) + len(m.loaded)
}

// Entries returns all entries, base first.
func (m *Matcher) Entries() []Entry {
	m.lock.RLock()
	defer m.lock.RUnlock()
	res := make([]Entry, 0, len(m.base)+len(m.loaded))
	res = append(res, m.base...)
	return append(res, m.loaded...)
}

// Load parses readers, one entry per line, and replaces previously loaded entries.
// Empty lines and lines starting with # are skipped. On any error the current entries are kept,
// errors of all lines are reported together.
func (m *Matcher) Load(readers ...io.Reader) (LoadResult, error) {
	entries := []Entry{}
	lr := LoadResult{}
	errs := new(multierror.Error)

	for i, r := range readers {
		scanner := bufio.NewScanner(r)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			e, err := ParseEntry(text)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("reader %d, line %d: %w", i, line, err))
				continue
			}
			switch e.(type) {
			case Pattern:
				lr.Patterns++
			default:
				lr.Literals++
			}
			entries = append(entries, e)
		}
		if err := scanner.Err(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to read lexicon, reader %d: %w", i, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return LoadResult{}, err
	}

	m.lock.Lock()
	m.loaded = entries
	m.lock.Unlock()
	return lr, nil
}

// Reset removes loaded entries, base entries are kept.
func (m *Matcher) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.loaded = nil
}
