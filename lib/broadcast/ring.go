// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package broadcast

// ring is a fixed-capacity FIFO that drops its oldest element when
// full. Not safe for concurrent use; Broadcaster guards it.
type ring[T any] struct {
	items []T
	// start indexes the oldest element.
	start int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(value T) {
	capacity := len(r.items)
	if capacity == 0 {
		return
	}
	if r.count < capacity {
		r.items[(r.start+r.count)%capacity] = value
		r.count++
		return
	}
	r.items[r.start] = value
	r.start = (r.start + 1) % capacity
}

// snapshot returns the retained elements, oldest first.
func (r *ring[T]) snapshot() []T {
	result := make([]T, r.count)
	for index := range r.count {
		result[index] = r.items[(r.start+index)%len(r.items)]
	}
	return result
}

func (r *ring[T]) clear() {
	clear(r.items)
	r.start = 0
	r.count = 0
}
