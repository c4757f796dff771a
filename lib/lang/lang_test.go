package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Validate(t *testing.T) {
	require.NoError(t, DefaultTable.Validate())

	tests := []struct {
		name  string
		table Table
		err   string
	}{
		{"empty label", Table{{Label: "", Ranges: []Range{{1, 2}}}}, "script #0 has empty label"},
		{"reserved label", Table{{Label: Unknown, Ranges: []Range{{1, 2}}}}, `script #0 uses reserved label "unknown"`},
		{"duplicate", Table{{Label: "a", Ranges: []Range{{1, 2}}}, {Label: "a", Ranges: []Range{{3, 4}}}},
			`duplicate script label "a"`},
		{"no ranges", Table{{Label: "a"}}, `script "a" has no ranges`},
		{"inverted", Table{{Label: "a", Ranges: []Range{{0x42, 0x41}}}}, `script "a" has inverted range U+0042-U+0041`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.table.Validate(), tt.err)
		})
	}
}

func TestTable_Labels(t *testing.T) {
	assert.Equal(t, []string{"ja", "en", "ar", "zh", "ko", "ru", "he", "hi", "th", "fa", "de", "es", "emoji"},
		DefaultTable.Labels())
}

func TestTable_Classify(t *testing.T) {
	tests := []struct {
		r    rune
		want string
	}{
		{'a', English},
		{'Z', English},
		{'あ', Japanese},
		{'ｱ', Japanese},
		{'漢', Japanese}, // kanji goes to ja, zh is never reached for the shared block
		{'م', Arabic},   // ar shadows fa
		{'한', Korean},
		{'ж', Russian},
		{'ש', Hebrew},
		{'ह', Hindi},
		{'ก', Thai},
		{'ü', German}, // de shadows es
		{'€', German},
		{'😀', Emoji},
		{'🀄', Emoji},
		{'1', Unknown},
		{' ', Unknown},
		{'!', Unknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultTable.Classify(tt.r))
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Guess
	}{
		{"empty", "", Guess{Primary: Unknown}},
		{"english word", "Hello", Guess{Primary: English}},
		{"english with punctuation", "Hello world!", Guess{Primary: English, Secondary: Unknown}},
		{"japanese", "こんにちは", Guess{Primary: Japanese}},
		{"japanese with kanji", "日本語です", Guess{Primary: Japanese}},
		{"arabic", "مرحبا", Guess{Primary: Arabic}},
		{"russian", "Привет мир", Guess{Primary: Russian, Secondary: Unknown}},
		{"korean", "안녕하세요", Guess{Primary: Korean}},
		{"equal ja and en, ja wins by priority", "あいab", Guess{Primary: Japanese, Secondary: English}},
		{"equal en and ja, order in text doesn't matter", "abあい", Guess{Primary: Japanese, Secondary: English}},
		{"equal en and unknown, unknown goes last", "ab12", Guess{Primary: English, Secondary: Unknown}},
		{"digits only", "12345", Guess{Primary: Unknown}},
		{"mostly emoji", "😀😀a", Guess{Primary: Emoji, Secondary: English}},
		{"mixed three scripts", "abcあいм", Guess{Primary: English, Secondary: Japanese}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

func TestTable_Shares(t *testing.T) {
	assert.Nil(t, DefaultTable.Shares(""))

	shares := DefaultTable.Shares("ab1")
	require.Len(t, shares, len(DefaultTable)+1)
	assert.Equal(t, Share{Label: English, Count: 2, Ratio: 2.0 / 3}, shares[0])
	assert.Equal(t, Share{Label: Unknown, Count: 1, Ratio: 1.0 / 3}, shares[1])
	assert.Equal(t, Japanese, shares[2].Label, "zero shares keep table order")
	assert.Equal(t, Emoji, shares[len(shares)-1].Label)
}

func TestGuess_SharesLabel(t *testing.T) {
	tests := []struct {
		name string
		a, b Guess
		want bool
	}{
		{"same primary", Guess{Primary: "ja"}, Guess{Primary: "ja"}, true},
		{"primary matches secondary", Guess{Primary: "ja", Secondary: "en"}, Guess{Primary: "en", Secondary: "unknown"}, true},
		{"different", Guess{Primary: "ar", Secondary: "unknown"}, Guess{Primary: "en", Secondary: "unknown"}, false},
		{"unknown only", Guess{Primary: "unknown"}, Guess{Primary: "unknown"}, false},
		{"empty vs label", Guess{Primary: "unknown"}, Guess{Primary: "en"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.SharesLabel(tt.b))
			assert.Equal(t, tt.want, tt.b.SharesLabel(tt.a), "symmetric")
		})
	}
}

func TestGuess_String(t *testing.T) {
	assert.Equal(t, "en", Guess{Primary: "en"}.String())
	assert.Equal(t, "ja/en", Guess{Primary: "ja", Secondary: "en"}.String())
}

func TestRatios(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(string) float64
		text  string
		ratio float64
	}{
		{"emoji empty", EmojiRatio, "", 0},
		{"emoji none", EmojiRatio, "hello", 0},
		{"emoji half", EmojiRatio, "😀a", 0.5},
		{"emoji all", EmojiRatio, "🔥🔥🔥", 1},
		{"emoji extended-A", EmojiRatio, "🫠", 1},
		{"arabic empty", ArabicRatio, "", 0},
		{"arabic none", ArabicRatio, "hello", 0},
		{"arabic part", ArabicRatio, "ab مر", 0.4},
		{"arabic all", ArabicRatio, "مرحبا", 1},
		{"persian shares arabic block", func(s string) float64 { return ScriptRatio(s, Persian) }, "ab مر", 0.4},
		{"kanji counts for zh too", func(s string) float64 { return ScriptRatio(s, Chinese) }, "漢字ab", 0.5},
		{"unknown label", func(s string) float64 { return ScriptRatio(s, "xx") }, "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.ratio, tt.fn(tt.text), 0.0001)
		})
	}
}

func TestScriptRatio_Bounds(t *testing.T) {
	texts := []string{"", "a", "Hello world", "こんにちは world 😀", "مرحبا hello", "​​", "12345"}
	for _, text := range texts {
		for _, label := range append(DefaultTable.Labels(), Unknown, "xx") {
			r := ScriptRatio(text, label)
			assert.GreaterOrEqual(t, r, 0.0, "text %q, label %s", text, label)
			assert.LessOrEqual(t, r, 1.0, "text %q, label %s", text, label)
			if text == "" {
				assert.Zero(t, r, "label %s", label)
			}
		}
	}
}

func TestTable_Ratios(t *testing.T) {
	assert.Empty(t, DefaultTable.Ratios(""))
	res := DefaultTable.Ratios("ab مر")
	assert.Equal(t, map[string]float64{English: 0.4, Arabic: 0.4, Persian: 0.4}, res)
}
