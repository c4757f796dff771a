// Package lang classifies text by Unicode code-point ranges. It is not a statistical language
// identifier: every rune is assigned to the first script label of an ordered table whose ranges
// contain it, and the label shares drive both the detection and the text ratios.
//
// The table order is part of the contract. Labels with overlapping ranges (ja and zh share the
// CJK ideographs, ar and fa share the Arabic block) resolve to whichever label comes first,
// and ties between label shares are broken the same way.
package lang

import "fmt"

// Unknown is the label for runes not covered by any script of the table.
const Unknown = "unknown"

// labels of the default table
const (
	Japanese = "ja"
	English  = "en"
	Arabic   = "ar"
	Chinese  = "zh"
	Korean   = "ko"
	Russian  = "ru"
	Hebrew   = "he"
	Hindi    = "hi"
	Thai     = "th"
	Persian  = "fa"
	German   = "de"
	Spanish  = "es"
	Emoji    = "emoji"
)

// Range is an inclusive code-point range.
type Range struct {
	Start rune
	End   rune
}

// Contains reports whether r is inside the range, bounds included.
func (rg Range) Contains(r rune) bool {
	return r >= rg.Start && r <= rg.End
}

// Script is a labeled group of code-point ranges.
type Script struct {
	Label  string
	Ranges []Range
}

// Contains reports whether r belongs to any of the script ranges.
func (s Script) Contains(r rune) bool {
	for _, rg := range s.Ranges {
		if rg.Contains(r) {
			return true
		}
	}
	return false
}

// Table is an ordered list of scripts. The position of a script is its priority.
type Table []Script

// DefaultTable is the built-in script table.
var DefaultTable = Table{
	{Label: Japanese, Ranges: []Range{
		{0x3040, 0x309F}, // hiragana
		{0x30A0, 0x30FF}, // katakana
		{0xFF65, 0xFF9F}, // half-width katakana
		{0x4E00, 0x9FFF}, // kanji
	}},
	{Label: English, Ranges: []Range{{0x0041, 0x005A}, {0x0061, 0x007A}}},
	{Label: Arabic, Ranges: []Range{{0x0600, 0x06FF}}},
	{Label: Chinese, Ranges: []Range{{0x4E00, 0x9FFF}}},
	{Label: Korean, Ranges: []Range{{0xAC00, 0xD7AF}}},
	{Label: Russian, Ranges: []Range{{0x0400, 0x04FF}}},
	{Label: Hebrew, Ranges: []Range{{0x0590, 0x05FF}}},
	{Label: Hindi, Ranges: []Range{{0x0900, 0x097F}}},
	{Label: Thai, Ranges: []Range{{0x0E00, 0x0E7F}}},
	{Label: Persian, Ranges: []Range{{0x0600, 0x06FF}}},
	{Label: German, Ranges: []Range{
		{0x00C0, 0x00FF}, // umlauts, ß and other latin-1 letters
		{0x0152, 0x0153}, // Œ, œ
		{0x20A0, 0x20CF}, // currency symbols
	}},
	{Label: Spanish, Ranges: []Range{{0x00C0, 0x00FF}, {0x20A0, 0x20CF}}},
	{Label: Emoji, Ranges: []Range{
		{0x1F000, 0x1F9FF}, // mahjong tiles up to supplemental symbols and pictographs
		{0x1FA00, 0x1FAFF}, // chess symbols, symbols and pictographs extended-A
	}},
}

// Validate checks the table for empty or duplicate labels and for inverted ranges.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for i, s := range t {
		if s.Label == "" {
			return fmt.Errorf("script #%d has empty label", i)
		}
		if s.Label == Unknown {
			return fmt.Errorf("script #%d uses reserved label %q", i, Unknown)
		}
		if _, ok := seen[s.Label]; ok {
			return fmt.Errorf("duplicate script label %q", s.Label)
		}
		seen[s.Label] = struct{}{}
		if len(s.Ranges) == 0 {
			return fmt.Errorf("script %q has no ranges", s.Label)
		}
		for _, rg := range s.Ranges {
			if rg.Start > rg.End {
				return fmt.Errorf("script %q has inverted range %U-%U", s.Label, rg.Start, rg.End)
			}
		}
	}
	return nil
}

// Labels returns script labels in table order.
func (t Table) Labels() []string {
	res := make([]string, 0, len(t))
	for _, s := range t {
		res = append(res, s.Label)
	}
	return res
}

// Classify returns the label of the first script containing r, or Unknown.
func (t Table) Classify(r rune) string {
	for _, s := range t {
		if s.Contains(r) {
			return s.Label
		}
	}
	return Unknown
}

// script returns the script with the given label
func (t Table) script(label string) (Script, bool) {
	for _, s := range t {
		if s.Label == label {
			return s, true
		}
	}
	return Script{}, false
}
