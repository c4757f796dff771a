package lexicon

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-pkgz/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	m := NewDefault()
	assert.Equal(t, 4, m.Len())

	spam := []string{
		"お前のプロフ抜けるわ",
		"よかったらプロフ見て",
		"え、お前のプロフ抜けるわｗ",
		"おまえのプロフぬけるわ",
		"お前の🔥プロフ抜けるわ",
		"よかったら\u200bプロフ見て",
		"良かったら、プロフみてね",
		"よかったら私のプロフ見てください",
	}
	for _, text := range spam {
		t.Run(text, func(t *testing.T) {
			assert.True(t, m.Matches(text))
		})
	}

	ham := []string{
		"",
		"Hello world",
		"今日はいい天気ですね",
		"プロフィールを更新しました",
		"よかったら一緒に行きませんか",
		"مرحبا بكم",
	}
	for _, text := range ham {
		t.Run("ham "+text, func(t *testing.T) {
			assert.False(t, m.Matches(text))
		})
	}
}

func TestMatcher_FindStopsOnFirstHit(t *testing.T) {
	m := New(NewLiteral("buy now"), MustPattern(`buy\s+now`), NewLiteral("now"))
	e, ok := m.Find("please BUY NOW!!!")
	require.True(t, ok)
	assert.Equal(t, "buy now", e.String())

	e, ok = m.Find("buy   now")
	require.True(t, ok)
	assert.Equal(t, `/buy\s+now/`, e.String())

	_, ok = m.Find("nothing here")
	assert.False(t, ok)
}

func TestMatcher_Empty(t *testing.T) {
	m := New()
	assert.False(t, m.Matches("お前のプロフ抜けるわ"))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Entries())
}

func TestMatcher_Load(t *testing.T) {
	m := NewDefault()
	lr, err := m.Load(strings.NewReader(`
# crypto giveaway
"free crypto airdrop"
dm me for promo
/t\.me/[a-z0-9_]+bot/

`))
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Literals: 2, Patterns: 1}, lr)
	assert.Equal(t, 3, lr.Total())
	assert.Equal(t, 7, m.Len())

	assert.True(t, m.Matches("Get your FREE crypto airdrop today"))
	assert.True(t, m.Matches("DM me for promo 💸"))
	assert.True(t, m.Matches("join t.me/cashbot"))
	assert.True(t, m.Matches("お前のプロフ抜けるわ"), "base entries kept")
	assert.False(t, m.Matches("# crypto giveaway"), "comments skipped")

	entries := m.Entries()
	require.Len(t, entries, 7)
	assert.Equal(t, "お前のプロフ抜けるわ", entries[0].String())
	assert.Equal(t, "free crypto airdrop", entries[4].String())

	// reload replaces loaded entries only
	lr, err = m.Load(strings.NewReader("another phrase"))
	require.NoError(t, err)
	assert.Equal(t, 1, lr.Total())
	assert.Equal(t, 5, m.Len())
	assert.False(t, m.Matches("free crypto airdrop"))
	assert.True(t, m.Matches("another phrase"))

	m.Reset()
	assert.Equal(t, 4, m.Len())
}

func TestMatcher_LoadErrorKeepsEntries(t *testing.T) {
	m := New()
	_, err := m.Load(strings.NewReader("good phrase"))
	require.NoError(t, err)

	_, err = m.Load(strings.NewReader("other\n/[unclosed/\n/(bad/"), strings.NewReader("/ok/"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "reader 0, line 2")
	assert.Contains(t, err.Error(), "reader 0, line 3")

	assert.True(t, m.Matches("good phrase"), "previous entries kept")
	assert.False(t, m.Matches("other"))
}

func TestMatcher_LoadFromFile(t *testing.T) {
	path := testutils.WriteTestFile(t, "spam phrase one\n/phrase\\s+two/\n")
	fh, err := os.Open(path) //nolint:gosec // test file
	require.NoError(t, err)
	defer fh.Close()

	m := New()
	lr, err := m.Load(fh)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Literals: 1, Patterns: 1}, lr)
	assert.True(t, m.Matches("this is spam phrase one"))
	assert.True(t, m.Matches("phrase    two"))
}

func TestMatcher_Concurrent(t *testing.T) {
	m := NewDefault()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.True(t, m.Matches("よかったらプロフ見て"))
		}()
		go func() {
			defer wg.Done()
			_, err := m.Load(strings.NewReader("phrase"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestParseEntry(t *testing.T) {
	tests := []struct {
		line    string
		str     string
		pattern bool
		err     bool
	}{
		{line: "plain phrase", str: "plain phrase"},
		{line: `  "quoted phrase"  `, str: "quoted phrase"},
		{line: "/regex.+/", str: "/regex.+/", pattern: true},
		{line: "/[bad/", err: true},
		{line: "//", str: "//"},
		{line: "   ", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			e, err := ParseEntry(tt.line)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.str, e.String())
			_, isPattern := e.(Pattern)
			assert.Equal(t, tt.pattern, isPattern)
		})
	}
}

func TestLiteral_Match(t *testing.T) {
	l := NewLiteral("Check My Profile")
	assert.True(t, l.Match("", Normalize("please CHECK MY PROFILE")))
	assert.False(t, l.Match("", Normalize("check my prof")))
	assert.False(t, NewLiteral("").Match("", "anything"), "empty literal never matches")
	assert.False(t, NewLiteral("🔥").Match("", Normalize("🔥")), "emoji-only literal normalizes to empty")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"", ""},
		{"Hello World", "hello world"},
		{"he\u200bllo", "hello"},
		{"line\nbreak", "linebreak"},
		{"fire 🔥 here", "fire  here"},
		{"ПРИВЕТ", "привет"},
		{"お前のプロフ", "お前のプロフ"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.out, Normalize(tt.in))
		})
	}
}
