package spamcheck

import (
	"container/ring"
	"sync"
	"time"
)

// Scored is a post with its scoring result.
type Scored struct {
	Post    Post      `json:"post"`
	Result  Result    `json:"result"`
	Session string    `json:"session,omitempty"`
	Flagged bool      `json:"flagged"`
	Time    time.Time `json:"time"`
}

// History keeps track of last N scored posts, thread-safe.
type History struct {
	items *ring.Ring
	size  int
	lock  sync.RWMutex
}

// NewHistory creates new history tracker
func NewHistory(size int) *History {
	// minimum size is 1
	if size < 1 {
		size = 1
	}
	return &History{
		items: ring.New(size),
		size:  size,
	}
}

// Push adds new scored post to the history
func (h *History) Push(s Scored) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.items.Value = s
	h.items = h.items.Next()
}

// Last returns up to n last scored posts in chronological order (oldest to newest)
func (h *History) Last(n int) []Scored {
	if n < 1 {
		return []Scored{}
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	if n > h.size {
		n = h.size
	}

	result := make([]Scored, 0, n)
	h.items.Do(func(v any) {
		if v != nil {
			if s, ok := v.(Scored); ok {
				result = append(result, s)
			}
		}
	})

	if len(result) > n {
		result = result[len(result)-n:]
	}
	return result
}

// Size returns the size of history
func (h *History) Size() int {
	return h.size
}
