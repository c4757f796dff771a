package lang

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Guess is a result of language detection.
// Secondary is empty if there is no second label with nonzero share.
type Guess struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// Labels returns primary and secondary labels, skipping empty ones.
func (g Guess) Labels() []string {
	res := []string{g.Primary}
	if g.Secondary != "" {
		res = append(res, g.Secondary)
	}
	return res
}

// SharesLabel reports whether two guesses have a common label other than Unknown,
// regardless of primary/secondary position.
func (g Guess) SharesLabel(other Guess) bool {
	for _, a := range g.Labels() {
		if a == Unknown || a == "" {
			continue
		}
		for _, b := range other.Labels() {
			if a == b {
				return true
			}
		}
	}
	return false
}

func (g Guess) String() string {
	if g.Secondary == "" {
		return g.Primary
	}
	return fmt.Sprintf("%s/%s", g.Primary, g.Secondary)
}

// Share is a part of text classified as a label.
type Share struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Ratio float64 `json:"ratio"`
}

// Shares classifies every rune of the text and returns per-label shares, sorted by ratio
// in descending order. Equal ratios keep table order, Unknown goes after all table labels.
// Empty text yields nil.
func (t Table) Shares(text string) []Share {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return nil
	}

	counts := make([]int, len(t)+1) // last slot is for unknown
	for _, r := range text {
		idx := len(t)
		for i, s := range t {
			if s.Contains(r) {
				idx = i
				break
			}
		}
		counts[idx]++
	}

	res := make([]Share, 0, len(counts))
	for i, cnt := range counts {
		label := Unknown
		if i < len(t) {
			label = t[i].Label
		}
		res = append(res, Share{Label: label, Count: cnt, Ratio: float64(cnt) / float64(total)})
	}
	// counts share the same denominator, comparing counts avoids float ties
	sort.SliceStable(res, func(i, j int) bool { return res[i].Count > res[j].Count })
	return res
}

// Detect guesses primary and secondary script labels of the text.
func (t Table) Detect(text string) Guess {
	shares := t.Shares(text)
	if len(shares) == 0 || shares[0].Count == 0 {
		return Guess{Primary: Unknown}
	}
	res := Guess{Primary: shares[0].Label}
	if len(shares) > 1 && shares[1].Count > 0 {
		res.Secondary = shares[1].Label
	}
	return res
}

// Detect guesses primary and secondary script labels of the text with DefaultTable.
func Detect(text string) Guess {
	return DefaultTable.Detect(text)
}
