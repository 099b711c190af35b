package marketdata

import (
	"sort"
	"time"
)

// Sample is anything that becomes visible to a replay at a fixed instant.
type Sample interface {
	AvailableAt() time.Time
}

// Cursor is an index into an immutable, ascending series. Only the clock loop
// advances it; every other reader sees a stable view.
type Cursor[T Sample] struct {
	samples []T
	index   int
}

func NewCursor[T Sample](samples []T) *Cursor[T] {
	return &Cursor[T]{samples: samples}
}

// Advance moves past every sample available at or before now and returns the
// samples passed by this call.
func (c *Cursor[T]) Advance(now time.Time) []T {
	start := c.index
	for c.index < len(c.samples) && !c.samples[c.index].AvailableAt().After(now) {
		c.index++
	}
	return c.samples[start:c.index:c.index]
}

// Current is the latest sample the cursor has passed.
func (c *Cursor[T]) Current() (T, bool) {
	if c.index == 0 {
		var zero T
		return zero, false
	}
	return c.samples[c.index-1], true
}

func (c *Cursor[T]) Next() (T, bool) {
	if c.index >= len(c.samples) {
		var zero T
		return zero, false
	}
	return c.samples[c.index], true
}

func (c *Cursor[T]) Reset() {
	c.index = 0
}

// Passed returns every sample already revealed.
func (c *Cursor[T]) Passed() []T {
	return c.samples[:c.index:c.index]
}

// Window returns the samples available within [from, to]. The slice aliases
// the underlying series and must not be modified.
func (c *Cursor[T]) Window(from, to time.Time) []T {
	lo := sort.Search(len(c.samples), func(i int) bool {
		return !c.samples[i].AvailableAt().Before(from)
	})
	hi := sort.Search(len(c.samples), func(i int) bool {
		return c.samples[i].AvailableAt().After(to)
	})
	if hi < lo {
		hi = lo
	}
	return c.samples[lo:hi:hi]
}

func (c *Cursor[T]) Len() int { return len(c.samples) }

func (c *Cursor[T]) Exhausted() bool { return c.index >= len(c.samples) }
