package lang

import "unicode/utf8"

// Ratio returns the part of text runes inside the ranges of the given label, 0..1.
// Unlike Detect, it doesn't care about table priority, so a rune may count for several labels.
// Empty text and unknown labels give 0.
func (t Table) Ratio(text, label string) float64 {
	s, ok := t.script(label)
	if !ok {
		return 0
	}
	total, count := 0, 0
	for _, r := range text {
		total++
		if s.Contains(r) {
			count++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// Ratios returns ratio for every label of the table, skipping zero values.
func (t Table) Ratios(text string) map[string]float64 {
	res := map[string]float64{}
	if utf8.RuneCountInString(text) == 0 {
		return res
	}
	for _, s := range t {
		if r := t.Ratio(text, s.Label); r > 0 {
			res[s.Label] = r
		}
	}
	return res
}

// ScriptRatio returns the part of text in the given script of DefaultTable.
func ScriptRatio(text, label string) float64 { return DefaultTable.Ratio(text, label) }

// EmojiRatio returns the part of text made of emoji code points.
func EmojiRatio(text string) float64 { return DefaultTable.Ratio(text, Emoji) }

// ArabicRatio returns the part of text in Arabic script.
func ArabicRatio(text string) float64 { return DefaultTable.Ratio(text, Arabic) }
