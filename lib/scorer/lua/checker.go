// Package lua provides Lua plugin rules for the scorer. Every script defines a "check" function
// which takes a post table and a thread table and returns a boolean (is spam), a string (reason)
// and an optional weight. A rule made from the script "foo.lua" is named "lua-foo".
package lua

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/umputun/tl-spam/lib/lang"
	"github.com/umputun/tl-spam/lib/scorer"
	"github.com/umputun/tl-spam/lib/spamcheck"
)

// DefaultWeight is used if a script doesn't return a weight.
const DefaultWeight = 10

// Checker keeps loaded Lua scripts and runs them as scorer rules. Lua VM is not thread-safe,
// so all calls are serialized.
type Checker struct {
	vm       *lua.LState
	checkers map[string]*lua.LFunction
	table    lang.Table
	weight   int
	mu       sync.Mutex
}

// NewChecker makes a Checker with helpers registered. Weight is used for scripts that don't return
// one, DefaultWeight if not positive.
func NewChecker(weight int) *Checker {
	if weight <= 0 {
		weight = DefaultWeight
	}
	c := &Checker{
		vm:       lua.NewState(),
		checkers: make(map[string]*lua.LFunction),
		table:    lang.DefaultTable,
		weight:   weight,
	}
	c.RegisterHelpers()
	return c
}

// LoadScript loads a script and registers its check function under the file name.
// Loading a script with the same name replaces the previous one.
func (c *Checker) LoadScript(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vm.SetGlobal("check", lua.LNil) // don't pick up check function of a previous script
	if err := c.vm.DoFile(path); err != nil {
		return fmt.Errorf("failed to load lua script %s: %w", path, err)
	}

	fn, ok := c.vm.GetGlobal("check").(*lua.LFunction)
	if !ok {
		return fmt.Errorf("script %s must define a 'check' function", path)
	}
	c.checkers[scriptName(path)] = fn
	return nil
}

// ReloadScript reloads a changed script, same as LoadScript.
func (c *Checker) ReloadScript(path string) error {
	return c.LoadScript(path)
}

// RemoveScript unregisters a script by its file path or name.
func (c *Checker) RemoveScript(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checkers, scriptName(path))
}

// LoadDirectory loads all *.lua scripts from a directory.
func (c *Checker) LoadDirectory(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return fmt.Errorf("failed to list lua scripts in %s: %w", dir, err)
	}
	for _, file := range files {
		if err := c.LoadScript(file); err != nil {
			return err
		}
	}
	log.Printf("[INFO] loaded %d lua scripts from %s", len(files), dir)
	return nil
}

// Names returns names of loaded scripts, sorted.
func (c *Checker) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]string, 0, len(c.checkers))
	for name := range c.checkers {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// GetRule returns a scorer rule for the named script.
func (c *Checker) GetRule(name string) (scorer.Rule, error) {
	c.mu.Lock()
	_, ok := c.checkers[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("lua checker %q not found", name)
	}
	return func(post spamcheck.Post, th scorer.Thread) spamcheck.Response {
		c.mu.Lock()
		defer c.mu.Unlock()
		fn, ok := c.checkers[name]
		if !ok {
			return spamcheck.Response{Name: "lua-" + name, Details: "script removed"}
		}
		return c.call(name, fn, post, th)
	}, nil
}

// Check runs all loaded scripts in name order. It makes Checker usable as scorer.Plugins,
// so reloaded and removed scripts are picked up on the next call.
func (c *Checker) Check(post spamcheck.Post, th scorer.Thread) []spamcheck.Response {
	names := c.Names()
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]spamcheck.Response, 0, len(names))
	for _, name := range names {
		fn, ok := c.checkers[name]
		if !ok {
			continue
		}
		res = append(res, c.call(name, fn, post, th))
	}
	return res
}

// call runs a check function, caller holds the lock.
func (c *Checker) call(name string, fn *lua.LFunction, post spamcheck.Post, th scorer.Thread) spamcheck.Response {
	resp := spamcheck.Response{Name: "lua-" + name, Weight: c.weight}
	if err := c.vm.CallByParam(lua.P{Fn: fn, NRet: 3, Protect: true}, c.postTable(post), c.threadTable(post, th)); err != nil {
		resp.Details = "error executing lua checker: " + err.Error()
		resp.Error = err
		return resp
	}

	resp.Spam = lua.LVAsBool(c.vm.Get(-3))
	resp.Details = lua.LVAsString(c.vm.Get(-2))
	if w, ok := c.vm.Get(-1).(lua.LNumber); ok && int(w) > 0 {
		resp.Weight = int(w)
	}
	c.vm.Pop(3)
	return resp
}

func (c *Checker) postTable(post spamcheck.Post) *lua.LTable {
	res := c.vm.NewTable()
	res.RawSetString("id", lua.LString(post.ID))
	res.RawSetString("content", lua.LString(post.Content))
	res.RawSetString("language", lua.LString(post.Language))
	author := c.vm.NewTable()
	author.RawSetString("id", lua.LString(post.Author.ID))
	author.RawSetString("name", lua.LString(post.Author.Name))
	author.RawSetString("screen_name", lua.LString(post.Author.ScreenName))
	author.RawSetString("description", lua.LString(post.Author.Description))
	author.RawSetString("badge", lua.LString(string(post.Author.Badge)))
	res.RawSetString("author", author)
	return res
}

// threadTable exposes the part of thread state relevant for the post.
func (c *Checker) threadTable(post spamcheck.Post, th scorer.Thread) *lua.LTable {
	res := c.vm.NewTable()
	if th == nil {
		res.RawSetString("permalink", lua.LFalse)
		res.RawSetString("author_posts", lua.LNumber(0))
		return res
	}
	res.RawSetString("permalink", lua.LBool(th.Permalink()))
	res.RawSetString("author_posts", lua.LNumber(th.CountByAuthor(post.AuthorID())))
	if root, ok := th.Root(); ok {
		res.RawSetString("root_id", lua.LString(root.ID))
		res.RawSetString("root_author_id", lua.LString(root.AuthorID()))
		res.RawSetString("root_language", lua.LString(root.Language))
	}
	return res
}

// Close releases the Lua VM.
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vm.Close()
}

func scriptName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
