package runner

import "sync/atomic"

// RoundRobin hands out items from a fixed list in rotation. It is safe for
// concurrent use; workers typically use it to spread connections across
// several node URLs.
type RoundRobin[T any] struct {
	items  []T
	cursor atomic.Uint64
}

// NewRoundRobin returns a rotation over a copy of items, which must not be
// empty.
func NewRoundRobin[T any](items []T) *RoundRobin[T] {
	if len(items) == 0 {
		panic("runner: round robin over empty list")
	}
	return &RoundRobin[T]{items: append([]T(nil), items...)}
}

// Next returns the next item.
func (r *RoundRobin[T]) Next() T {
	i := r.cursor.Add(1) - 1
	return r.items[i%uint64(len(r.items))]
}

// Len returns the number of items in the rotation.
func (r *RoundRobin[T]) Len() int { return len(r.items) }
