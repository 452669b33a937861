// Package chunk groups a lazy sequence into fixed-width groups, padding the
// trailing partial group with a filler value instead of dropping it.
package chunk

import "iter"

// Pad returns a sequence of groups of exactly n elements taken in order
// from seq. A trailing partial group is completed with filler; an empty
// source, or one whose length is a multiple of n, yields no padded group.
//
// Each yielded slice is freshly allocated and may be retained by the caller.
func Pad[T any](seq iter.Seq[T], n int, filler T) iter.Seq[[]T] {
	if n <= 0 {
		panic("chunk: group width must be positive")
	}
	return func(yield func([]T) bool) {
		group := make([]T, 0, n)
		for v := range seq {
			group = append(group, v)
			if len(group) < n {
				continue
			}
			if !yield(group) {
				return
			}
			group = make([]T, 0, n)
		}
		if len(group) == 0 {
			return
		}
		yield(fill(group, n, filler))
	}
}

// Cursor is the pull-based form of Pad. It holds at most one pending
// partial group and flushes it exactly once, when the source runs dry.
type Cursor[T any] struct {
	next   func() (T, bool)
	n      int
	filler T
	done   bool
}

// NewCursor wraps a pull function, such as the one returned by iter.Pull.
func NewCursor[T any](next func() (T, bool), n int, filler T) *Cursor[T] {
	if n <= 0 {
		panic("chunk: group width must be positive")
	}
	return &Cursor[T]{next: next, n: n, filler: filler}
}

// Next returns the next group, or false once the source is exhausted and
// any partial group has been returned.
func (c *Cursor[T]) Next() ([]T, bool) {
	if c.done {
		return nil, false
	}
	group := make([]T, 0, c.n)
	for len(group) < c.n {
		v, ok := c.next()
		if !ok {
			c.done = true
			c.next = nil
			if len(group) == 0 {
				return nil, false
			}
			return fill(group, c.n, c.filler), true
		}
		group = append(group, v)
	}
	return group, true
}

func fill[T any](group []T, n int, filler T) []T {
	for len(group) < n {
		group = append(group, filler)
	}
	return group
}
