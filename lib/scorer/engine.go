// Package scorer assigns a heuristic spam score to a post. The score is the sum of weights of
// independent rules, each fired rule adds its reason to the result in evaluation order.
//
// The built-in rules, in evaluation order:
//
//   - lexicon (+50): content contains a known spam phrase
//   - emoji (+10): at least half of the content is emoji
//   - profile-lang (+20): content and author profile have no common script
//   - arabic (+20): content contains Arabic-script text
//   - paid-badge (+20): author carries the paid verification badge
//   - reply-lang (+30): permalink view, reply by another author in a language different from the root
//   - repeated-author (+30): permalink view, another author posted at least twice in the thread
//
// Extra rules added with Engine.WithRules and plugin rules set with Engine.WithPlugins run after
// the built-in ones. The engine has no notion of
// a spam threshold, comparing the score with a cutoff is up to the caller.
package scorer

import (
	"fmt"
	"log"
	"sync"

	"github.com/umputun/tl-spam/lib/lang"
	"github.com/umputun/tl-spam/lib/lexicon"
	"github.com/umputun/tl-spam/lib/spamcheck"
)

// Thread is a read-only view of the conversation state used by reply rules.
// thread.Context satisfies it.
type Thread interface {
	Root() (spamcheck.Post, bool)
	CountByAuthor(authorID string) int
	Permalink() bool
}

// Lexicon finds the first known spam phrase in a text. lexicon.Matcher satisfies it.
type Lexicon interface {
	Find(text string) (lexicon.Entry, bool)
}

// Plugins is a dynamic set of rules, evaluated after the built-in and extra rules.
// Implementations may change the set between calls, e.g. on script reload.
type Plugins interface {
	Check(post spamcheck.Post, th Thread) []spamcheck.Response
}

// Config is a set of parameters for Engine.
type Config struct {
	PaidBadge spamcheck.Badge // badge treated as paid verification, blue if empty
	Table     lang.Table      // script table, lang.DefaultTable if empty
	Lexicon   Lexicon         // spam phrases, built-in lexicon if nil
	Quiet     bool            // if true, fired rules are not logged
}

// Engine scores posts, thread-safe.
type Engine struct {
	Config
	rules   []Rule
	extra   []Rule
	plugins Plugins
	lock    sync.RWMutex
}

// New makes an Engine with the given config.
func New(cfg Config) *Engine {
	if cfg.PaidBadge == spamcheck.BadgeNone {
		cfg.PaidBadge = spamcheck.BadgeBlue
	}
	if len(cfg.Table) == 0 {
		cfg.Table = lang.DefaultTable
	}
	if cfg.Lexicon == nil {
		cfg.Lexicon = lexicon.NewDefault()
	}
	res := &Engine{Config: cfg}
	res.rules = []Rule{
		res.lexiconRule,
		res.emojiRule,
		res.profileLangRule,
		res.arabicRule,
		res.paidBadgeRule,
		res.replyLangRule,
		res.repeatedAuthorRule,
	}
	return res
}

// WithRules adds extra rules evaluated after the built-in ones.
func (e *Engine) WithRules(rules ...Rule) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.extra = append(e.extra, rules...)
}

// WithPlugins sets a dynamic rule set evaluated last.
func (e *Engine) WithPlugins(p Plugins) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.plugins = p
}

// CalcSpamScore evaluates all rules against the post and returns the total score with reasons.
// The thread may be nil, in this case reply rules never fire. Returns *spamcheck.FieldError
// if the post misses a required field.
func (e *Engine) CalcSpamScore(post spamcheck.Post, th Thread) (spamcheck.Result, error) {
	if err := post.Validate(); err != nil {
		return spamcheck.Result{}, fmt.Errorf("invalid post: %w", err)
	}

	e.lock.RLock()
	defer e.lock.RUnlock()

	res := spamcheck.Result{Reasons: []string{}, Checks: make([]spamcheck.Response, 0, len(e.rules)+len(e.extra))}
	for _, rule := range e.rules {
		res.Add(e.logged(post, rule(post, th)))
	}
	extra := make([]spamcheck.Response, 0, len(e.extra))
	for _, rule := range e.extra {
		extra = append(extra, rule(post, th))
	}
	if e.plugins != nil {
		extra = append(extra, e.plugins.Check(post, th)...)
	}
	for _, resp := range extra {
		if resp.Error != nil {
			log.Printf("[WARN] rule %s failed for post %s: %v", resp.Name, post.ID, resp.Error)
		}
		res.Add(e.logged(post, resp))
	}
	return res, nil
}

// RuleNames returns names of built-in rules in evaluation order.
func RuleNames() []string {
	return []string{RuleLexicon, RuleEmoji, RuleProfileLang, RuleArabic, RulePaidBadge, RuleReplyLang, RuleRepeatedAuthor}
}

func (e *Engine) logged(post spamcheck.Post, resp spamcheck.Response) spamcheck.Response {
	if resp.Spam {
		e.logf("[DEBUG] post %s, rule %s fired, +%d: %s", post.ID, resp.Name, resp.Weight, resp.Details)
	}
	return resp
}

func (e *Engine) logf(format string, args ...any) {
	if e.Quiet {
		return
	}
	log.Printf(format, args...)
}
