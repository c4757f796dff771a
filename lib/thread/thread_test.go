package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/tl-spam/lib/spamcheck"
)

func post(id, author string) spamcheck.Post {
	return spamcheck.Post{ID: id, Author: spamcheck.Author{ID: author}, Content: "post " + id}
}

func TestContext_Empty(t *testing.T) {
	c := New(View{ID: "/status/1", Permalink: true})
	_, ok := c.Root()
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.CountByAuthor("a"))
	assert.Empty(t, c.Posts())
	assert.True(t, c.Permalink())
	assert.Equal(t, View{ID: "/status/1", Permalink: true}, c.View())
}

func TestContext_AddAndRoot(t *testing.T) {
	c := New(View{ID: "v1"})
	assert.True(t, c.Add(post("1", "A")))
	assert.True(t, c.Add(post("2", "B")))
	assert.True(t, c.Add(post("3", "B")))

	root, ok := c.Root()
	require.True(t, ok)
	assert.Equal(t, "1", root.ID)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 1, c.CountByAuthor("A"))
	assert.Equal(t, 2, c.CountByAuthor("B"))
	assert.Equal(t, 0, c.CountByAuthor("C"))

	ids := []string{}
	for _, p := range c.Posts() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids, "first-seen order")

	p, ok := c.Get("2")
	require.True(t, ok)
	assert.Equal(t, "B", p.AuthorID())
	_, ok = c.Get("100")
	assert.False(t, ok)
}

func TestContext_AddIdempotent(t *testing.T) {
	c := New(View{ID: "v1"})
	assert.True(t, c.Add(post("1", "A")))
	assert.True(t, c.Add(post("2", "B")))
	sizeOnce, countOnce := c.Len(), c.CountByAuthor("B")

	dup := post("2", "B")
	dup.Content = "changed content"
	assert.False(t, c.Add(dup))
	assert.False(t, c.Add(post("2", "B")))

	assert.Equal(t, sizeOnce, c.Len())
	assert.Equal(t, countOnce, c.CountByAuthor("B"))
	p, _ := c.Get("2")
	assert.Equal(t, "post 2", p.Content, "first version is kept")
}

func TestContext_Reset(t *testing.T) {
	c := New(View{ID: "v1", Permalink: true})
	c.Add(post("1", "A"))
	c.Add(post("2", "B"))
	gen := c.Generation()

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.CountByAuthor("A"))
	_, ok := c.Root()
	assert.False(t, ok)
	assert.Equal(t, gen+1, c.Generation())
	assert.True(t, c.Permalink(), "view kept")

	// root is the first post after reset
	assert.True(t, c.Add(post("2", "B")), "ids seen before reset can be added again")
	root, ok := c.Root()
	require.True(t, ok)
	assert.Equal(t, "2", root.ID)
}

func TestContext_Switch(t *testing.T) {
	c := New(View{ID: "/home"})
	c.Add(post("1", "A"))

	assert.False(t, c.Switch(View{ID: "/home"}), "same view")
	assert.Equal(t, 1, c.Len())

	assert.False(t, c.Switch(View{ID: "/home", Permalink: true}), "same view id, mode updated")
	assert.True(t, c.Permalink())
	assert.Equal(t, 1, c.Len())

	gen := c.Generation()
	assert.True(t, c.Switch(View{ID: "/status/42", Permalink: true}))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, gen+1, c.Generation())
	assert.Equal(t, View{ID: "/status/42", Permalink: true}, c.View())
}

func TestContext_PostsIsCopy(t *testing.T) {
	c := New(View{})
	c.Add(post("1", "A"))
	posts := c.Posts()
	posts[0].ID = "changed"
	root, _ := c.Root()
	assert.Equal(t, "1", root.ID)
}
