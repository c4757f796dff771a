package lua

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/tl-spam/lib/scorer"
	"github.com/umputun/tl-spam/lib/spamcheck"
	"github.com/umputun/tl-spam/lib/thread"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testPost(id, author, content string) spamcheck.Post {
	return spamcheck.Post{ID: id, Content: content, Language: "en",
		Author: spamcheck.Author{ID: author, ScreenName: "sn_" + author, Description: "Hello", Badge: spamcheck.BadgeBlue}}
}

func TestChecker_LoadScript(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "promo.lua", `
function check(post, thread)
	if contains_any(to_lower(post.content), {"promo", "discount"}) then
		return true, "promo in " .. post.author.screen_name
	end
	return false, "no promo"
end
`)
	c := NewChecker(0)
	defer c.Close()
	require.NoError(t, c.LoadScript(path))
	assert.Equal(t, []string{"promo"}, c.Names())

	rule, err := c.GetRule("promo")
	require.NoError(t, err)

	resp := rule(testPost("1", "a", "Big PROMO today"), nil)
	assert.True(t, resp.Spam)
	assert.Equal(t, "lua-promo", resp.Name)
	assert.Equal(t, "promo in sn_a", resp.Details)
	assert.Equal(t, DefaultWeight, resp.Weight)
	require.NoError(t, resp.Error)

	resp = rule(testPost("2", "a", "nothing"), nil)
	assert.False(t, resp.Spam)
	assert.Equal(t, "no promo", resp.Details)

	_, err = c.GetRule("unknown")
	assert.Error(t, err)
}

func TestChecker_LoadScriptErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "good.lua", `function check(post) return false, "ok" end`)
	invalid := writeScript(t, dir, "invalid.lua", `this is not valid lua code`)
	noCheck := writeScript(t, dir, "no_check.lua", `function other() return true end`)

	c := NewChecker(5)
	defer c.Close()
	require.NoError(t, c.LoadScript(good))

	err := c.LoadScript(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load lua script")

	err = c.LoadScript(noCheck)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define a 'check' function", "check of a previously loaded script is not reused")

	assert.Equal(t, []string{"good"}, c.Names())
	assert.Error(t, c.LoadScript(filepath.Join(dir, "missing.lua")))
}

func TestChecker_WeightAndThread(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a_weight.lua", `
function check(post, thread)
	return true, "weighted", 42
end
`)
	writeScript(t, dir, "b_flood.lua", `
function check(post, thread)
	if thread.permalink and thread.author_posts >= 2 and thread.root_author_id ~= post.author.id then
		return true, "flood in reply to " .. thread.root_id
	end
	return false, "posts: " .. thread.author_posts
end
`)
	writeScript(t, dir, "readme.txt", "not a script")

	c := NewChecker(7)
	defer c.Close()
	require.NoError(t, c.LoadDirectory(dir))
	assert.Equal(t, []string{"a_weight", "b_flood"}, c.Names())

	th := thread.New(thread.View{ID: "v", Permalink: true})
	th.Add(testPost("r", "root", "root post"))
	th.Add(testPost("1", "b", "one"))

	resps := c.Check(testPost("1", "b", "one"), th)
	require.Len(t, resps, 2)
	assert.Equal(t, spamcheck.Response{Name: "lua-a_weight", Spam: true, Weight: 42, Details: "weighted"}, resps[0])
	assert.Equal(t, spamcheck.Response{Name: "lua-b_flood", Weight: 7, Details: "posts: 1"}, resps[1])

	th.Add(testPost("2", "b", "two"))
	resps = c.Check(testPost("2", "b", "two"), th)
	require.Len(t, resps, 2)
	assert.True(t, resps[1].Spam)
	assert.Equal(t, "flood in reply to r", resps[1].Details)

	resps = c.Check(testPost("3", "b", "three"), nil)
	require.Len(t, resps, 2)
	assert.Equal(t, "posts: 0", resps[1].Details)
}

func TestChecker_RuntimeError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "boom.lua", `function check(post) error("boom") end`)
	c := NewChecker(0)
	defer c.Close()
	require.NoError(t, c.LoadDirectory(dir))

	resps := c.Check(testPost("1", "a", "text"), nil)
	require.Len(t, resps, 1)
	assert.False(t, resps[0].Spam)
	require.Error(t, resps[0].Error)
	assert.Contains(t, resps[0].Details, "error executing lua checker")
}

func TestChecker_RemoveScript(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "gone.lua", `function check(post) return true, "hit" end`)
	c := NewChecker(0)
	defer c.Close()
	require.NoError(t, c.LoadScript(path))
	rule, err := c.GetRule("gone")
	require.NoError(t, err)

	c.RemoveScript(path)
	assert.Empty(t, c.Names())
	assert.Empty(t, c.Check(testPost("1", "a", "x"), nil))
	resp := rule(testPost("1", "a", "x"), nil)
	assert.False(t, resp.Spam)
	assert.Equal(t, "script removed", resp.Details)
}

func TestChecker_WithEngine(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "russian.lua", `
function check(post, thread)
	local primary, secondary = detect_lang(post.content)
	if primary == "ru" then
		return true, "cyrillic content", 15
	end
	return false, "primary " .. primary
end
`)
	c := NewChecker(0)
	defer c.Close()
	require.NoError(t, c.LoadDirectory(dir))

	e := scorer.New(scorer.Config{Quiet: true})
	e.WithPlugins(c)

	p := testPost("1", "a", "Привет")
	p.Author.Badge = spamcheck.BadgeNone
	p.Author.Description = "Привет всем"
	res, err := e.CalcSpamScore(p, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, res.Score)
	assert.Equal(t, []string{"cyrillic content"}, res.Reasons)
	assert.Equal(t, "lua-russian", res.Checks[len(res.Checks)-1].Name)

	// reloaded script is picked up by the engine
	writeScript(t, dir, "russian.lua", `function check(post) return false, "disabled" end`)
	require.NoError(t, c.ReloadScript(filepath.Join(dir, "russian.lua")))
	res, err = e.CalcSpamScore(p, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
}
