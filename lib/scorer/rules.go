package scorer

import (
	"fmt"

	"github.com/umputun/tl-spam/lib/lang"
	"github.com/umputun/tl-spam/lib/spamcheck"
)

// Rule is a single additive scoring condition. It returns a response with Spam set if the rule fired,
// the weight to add and the reason as details.
type Rule func(post spamcheck.Post, th Thread) spamcheck.Response

// names of built-in rules
const (
	RuleLexicon        = "lexicon"
	RuleEmoji          = "emoji"
	RuleProfileLang    = "profile-lang"
	RuleArabic         = "arabic"
	RulePaidBadge      = "paid-badge"
	RuleReplyLang      = "reply-lang"
	RuleRepeatedAuthor = "repeated-author"
)

// weights of built-in rules
const (
	WeightLexicon        = 50
	WeightEmoji          = 10
	WeightProfileLang    = 20
	WeightArabic         = 20
	WeightPaidBadge      = 20
	WeightReplyLang      = 30
	WeightRepeatedAuthor = 30
)

// reasons of built-in rules
const (
	ReasonLexicon        = "common spam phrasing"
	ReasonEmoji          = "high emoji ratio"
	ReasonProfileLang    = "content/profile language mismatch"
	ReasonArabic         = "contains Arabic-script text"
	ReasonPaidBadge      = "paid verification badge"
	ReasonReplyLang      = "reply language differs from original post"
	ReasonRepeatedAuthor = "same author appears repeatedly in thread"
)

const (
	emojiRatioThreshold = 0.5
	repeatedAuthorMin   = 2
)

// lexiconRule fires if the content contains a known spam phrase.
func (e *Engine) lexiconRule(post spamcheck.Post, _ Thread) spamcheck.Response {
	entry, ok := e.Lexicon.Find(post.Content)
	if !ok {
		return spamcheck.Response{Name: RuleLexicon, Weight: WeightLexicon, Details: "not found"}
	}
	e.logf("[DEBUG] post %s matched lexicon entry %s", post.ID, entry)
	return spamcheck.Response{Name: RuleLexicon, Spam: true, Weight: WeightLexicon, Details: ReasonLexicon}
}

// emojiRule fires if at least half of the content is emoji.
func (e *Engine) emojiRule(post spamcheck.Post, _ Thread) spamcheck.Response {
	ratio := e.Table.Ratio(post.Content, lang.Emoji)
	if ratio >= emojiRatioThreshold {
		return spamcheck.Response{Name: RuleEmoji, Spam: true, Weight: WeightEmoji, Details: ReasonEmoji}
	}
	return spamcheck.Response{Name: RuleEmoji, Weight: WeightEmoji, Details: fmt.Sprintf("%.2f/%.2f", ratio, emojiRatioThreshold)}
}

// profileLangRule fires if the content and the author profile have no common script label.
// Both primary and secondary labels are compared regardless of position, unknown is ignored.
func (e *Engine) profileLangRule(post spamcheck.Post, _ Thread) spamcheck.Response {
	content, profile := e.Table.Detect(post.Content), e.Table.Detect(post.Author.Description)
	if !content.SharesLabel(profile) {
		return spamcheck.Response{Name: RuleProfileLang, Spam: true, Weight: WeightProfileLang, Details: ReasonProfileLang}
	}
	return spamcheck.Response{Name: RuleProfileLang, Weight: WeightProfileLang,
		Details: fmt.Sprintf("content %s, profile %s", content, profile)}
}

// arabicRule fires if the content has any Arabic-script character.
func (e *Engine) arabicRule(post spamcheck.Post, _ Thread) spamcheck.Response {
	ratio := e.Table.Ratio(post.Content, lang.Arabic)
	if ratio > 0 {
		return spamcheck.Response{Name: RuleArabic, Spam: true, Weight: WeightArabic, Details: ReasonArabic}
	}
	return spamcheck.Response{Name: RuleArabic, Weight: WeightArabic, Details: "no Arabic script"}
}

// paidBadgeRule fires if the author has the paid verification badge.
func (e *Engine) paidBadgeRule(post spamcheck.Post, _ Thread) spamcheck.Response {
	if post.Author.Badge != spamcheck.BadgeNone && post.Author.Badge == e.PaidBadge {
		return spamcheck.Response{Name: RulePaidBadge, Spam: true, Weight: WeightPaidBadge, Details: ReasonPaidBadge}
	}
	badge := string(post.Author.Badge)
	if badge == "" {
		badge = "none"
	}
	return spamcheck.Response{Name: RulePaidBadge, Weight: WeightPaidBadge, Details: "badge: " + badge}
}

// replyLangRule fires in a permalink view for a reply by another author written in a language
// different from the root post.
func (e *Engine) replyLangRule(post spamcheck.Post, th Thread) spamcheck.Response {
	root, details, ok := replyGuard(post, th)
	if !ok {
		return spamcheck.Response{Name: RuleReplyLang, Weight: WeightReplyLang, Details: details}
	}
	if root.Language != post.Language {
		return spamcheck.Response{Name: RuleReplyLang, Spam: true, Weight: WeightReplyLang, Details: ReasonReplyLang}
	}
	return spamcheck.Response{Name: RuleReplyLang, Weight: WeightReplyLang, Details: fmt.Sprintf("same language %q", post.Language)}
}

// repeatedAuthorRule fires in a permalink view for a non-root author with several posts in the thread.
func (e *Engine) repeatedAuthorRule(post spamcheck.Post, th Thread) spamcheck.Response {
	_, details, ok := replyGuard(post, th)
	if !ok {
		return spamcheck.Response{Name: RuleRepeatedAuthor, Weight: WeightRepeatedAuthor, Details: details}
	}
	count := th.CountByAuthor(post.AuthorID())
	if count >= repeatedAuthorMin {
		return spamcheck.Response{Name: RuleRepeatedAuthor, Spam: true, Weight: WeightRepeatedAuthor, Details: ReasonRepeatedAuthor}
	}
	return spamcheck.Response{Name: RuleRepeatedAuthor, Weight: WeightRepeatedAuthor, Details: fmt.Sprintf("%d/%d", count, repeatedAuthorMin)}
}

// replyGuard checks the common condition of reply rules: permalink view, root post present
// and the post written by someone else than the root author.
func replyGuard(post spamcheck.Post, th Thread) (root spamcheck.Post, details string, ok bool) {
	if th == nil || !th.Permalink() {
		return root, "not a permalink view", false
	}
	root, ok = th.Root()
	if !ok {
		return root, "no root post", false
	}
	if root.AuthorID() == post.AuthorID() {
		return root, "root author", false
	}
	return root, "", true
}
