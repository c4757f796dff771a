// Package thread keeps the state of the currently viewed conversation: the posts seen so far,
// in first-seen order and unique by id, and the view they were seen in.
//
// Context is owned by a single scan session and is not safe for concurrent use, the owner
// serializes Add, Switch and Reset with reads made while scoring.
package thread

import "github.com/umputun/tl-spam/lib/spamcheck"

// View identifies what the viewer is looking at. Permalink is true for a single-conversation view,
// where replies are compared with the root post.
type View struct {
	ID        string `json:"id"`
	Permalink bool   `json:"permalink"`
}

// Context is the set of posts seen in the current view.
type Context struct {
	view     View
	posts    []spamcheck.Post
	index    map[string]int // post id -> position in posts
	byAuthor map[string]int // author id -> number of posts
	gen      uint64
}

// New makes an empty context for the given view.
func New(view View) *Context {
	return &Context{
		view:     view,
		index:    map[string]int{},
		byAuthor: map[string]int{},
	}
}

// Add inserts the post if its id wasn't seen since the last reset. Returns true if inserted.
func (c *Context) Add(post spamcheck.Post) bool {
	if _, ok := c.index[post.ID]; ok {
		return false
	}
	c.index[post.ID] = len(c.posts)
	c.posts = append(c.posts, post)
	c.byAuthor[post.AuthorID()]++
	return true
}

// Reset removes all posts. The view is kept.
func (c *Context) Reset() {
	c.posts = nil
	c.index = map[string]int{}
	c.byAuthor = map[string]int{}
	c.gen++
}

// Switch moves the context to another view. If the view id differs from the current one,
// all posts are dropped. Returns true if the context was reset.
func (c *Context) Switch(view View) bool {
	if view.ID == c.view.ID {
		c.view.Permalink = view.Permalink
		return false
	}
	c.view = view
	c.Reset()
	return true
}

// Root returns the first post added since the last reset.
func (c *Context) Root() (spamcheck.Post, bool) {
	if len(c.posts) == 0 {
		return spamcheck.Post{}, false
	}
	return c.posts[0], true
}

// CountByAuthor returns the number of stored posts by the author.
func (c *Context) CountByAuthor(authorID string) int {
	return c.byAuthor[authorID]
}

// Get returns a stored post by id.
func (c *Context) Get(id string) (spamcheck.Post, bool) {
	i, ok := c.index[id]
	if !ok {
		return spamcheck.Post{}, false
	}
	return c.posts[i], true
}

// Posts returns a copy of stored posts in first-seen order.
func (c *Context) Posts() []spamcheck.Post {
	res := make([]spamcheck.Post, len(c.posts))
	copy(res, c.posts)
	return res
}

// Len returns the number of stored posts.
func (c *Context) Len() int { return len(c.posts) }

// View returns the current view.
func (c *Context) View() View { return c.view }

// Permalink reports whether the current view is a single-conversation one.
func (c *Context) Permalink() bool { return c.view.Permalink }

// Generation is incremented on every reset. Results computed under an older generation
// belong to a stale view.
func (c *Context) Generation() uint64 { return c.gen }
