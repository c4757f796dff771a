package lua

import (
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// RegisterHelpers registers helper functions available to scripts
func (c *Checker) RegisterHelpers() {
	c.vm.SetGlobal("detect_lang", c.vm.NewFunction(c.detectLang))
	c.vm.SetGlobal("script_ratio", c.vm.NewFunction(c.scriptRatio))
	c.vm.SetGlobal("count_substring", c.vm.NewFunction(countSubstring))
	c.vm.SetGlobal("match_regex", c.vm.NewFunction(matchRegex))
	c.vm.SetGlobal("contains_any", c.vm.NewFunction(containsAny))
	c.vm.SetGlobal("to_lower", c.vm.NewFunction(toLowerCase))
	c.vm.SetGlobal("trim", c.vm.NewFunction(trim))
	c.vm.SetGlobal("split", c.vm.NewFunction(split))
	c.vm.SetGlobal("starts_with", c.vm.NewFunction(startsWith))
}

// detectLang returns primary and secondary script labels, secondary is nil if absent
func (c *Checker) detectLang(l *lua.LState) int {
	g := c.table.Detect(l.CheckString(1))
	l.Push(lua.LString(g.Primary))
	if g.Secondary == "" {
		l.Push(lua.LNil)
	} else {
		l.Push(lua.LString(g.Secondary))
	}
	return 2
}

// scriptRatio returns the part of text in the given script, 0..1
func (c *Checker) scriptRatio(l *lua.LState) int {
	l.Push(lua.LNumber(c.table.Ratio(l.CheckString(1), l.CheckString(2))))
	return 1
}

// countSubstring counts occurrences of a substring
func countSubstring(l *lua.LState) int {
	l.Push(lua.LNumber(strings.Count(l.CheckString(1), l.CheckString(2))))
	return 1
}

// matchRegex checks if a string matches a regex pattern, returns false and the error for a bad pattern
func matchRegex(l *lua.LState) int {
	text := l.CheckString(1)
	re, err := regexp.Compile(l.CheckString(2))
	if err != nil {
		l.Push(lua.LFalse)
		l.Push(lua.LString("invalid pattern: " + err.Error()))
		return 2
	}
	l.Push(lua.LBool(re.MatchString(text)))
	return 1
}

// containsAny checks if a string contains any of the substrings given as a table or as arguments.
// Returns true and the matched substring on hit.
func containsAny(l *lua.LState) int {
	str := l.CheckString(1)

	var items []string
	if l.GetTop() >= 2 && l.Get(2).Type() == lua.LTTable {
		l.ToTable(2).ForEach(func(_, v lua.LValue) {
			if v.Type() == lua.LTString {
				items = append(items, v.String())
			}
		})
	} else {
		for i := 2; i <= l.GetTop(); i++ {
			items = append(items, l.CheckString(i))
		}
	}

	for _, item := range items {
		if item != "" && strings.Contains(str, item) {
			l.Push(lua.LTrue)
			l.Push(lua.LString(item))
			return 2
		}
	}
	l.Push(lua.LFalse)
	return 1
}

func toLowerCase(l *lua.LState) int {
	l.Push(lua.LString(strings.ToLower(l.CheckString(1))))
	return 1
}

func trim(l *lua.LState) int {
	l.Push(lua.LString(strings.TrimSpace(l.CheckString(1))))
	return 1
}

// split splits a string by a separator into an array table
func split(l *lua.LState) int {
	res := l.NewTable()
	for i, part := range strings.Split(l.CheckString(1), l.CheckString(2)) {
		res.RawSetInt(i+1, lua.LString(part))
	}
	l.Push(res)
	return 1
}

func startsWith(l *lua.LState) int {
	l.Push(lua.LBool(strings.HasPrefix(l.CheckString(1), l.CheckString(2))))
	return 1
}
