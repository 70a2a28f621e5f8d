package core

import "sync/atomic"

// cacheLine separates the producer and consumer cursors. The RP2040 has no
// data cache, but the same queue runs on hosts where false sharing between
// the two cursors costs more than the padding.
const cacheLine = 64

// Queue is a fixed-capacity lock-free ring shared by exactly one producer
// and exactly one consumer, typically running on different cores.
//
// A queue created with capacity n holds at most n-1 items: one slot always
// stays free so that an empty ring (read == write) can be told apart from a
// full one.
//
// Positions wrap modulo 2n rather than growing without bound, so the
// full/empty comparisons stay exact for the life of the program and n does
// not have to be a power of two.
type Queue[T any] struct {
	_     [cacheLine]byte
	write atomic.Uint32 // producer owned
	_     [cacheLine - 4]byte
	read  atomic.Uint32 // consumer owned
	_     [cacheLine - 4]byte

	slots []T
	size  uint32
	wrap  uint32
}

// NewQueue allocates a queue with capacity slots, one of which is never
// used. It panics if capacity < 2; queues are created once at startup.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 2 || capacity > 1<<30 {
		panic("queue: capacity must be between 2 and 2^30")
	}
	return &Queue[T]{
		slots: make([]T, capacity),
		size:  uint32(capacity),
		wrap:  2 * uint32(capacity),
	}
}

// next advances a position, wrapping modulo 2n
func (q *Queue[T]) next(pos uint32) uint32 {
	pos++
	if pos == q.wrap {
		pos = 0
	}
	return pos
}

// Push stores v for the consumer. It returns ErrQueueFull, leaving the
// queue untouched, when n-1 items are already held. Producer only.
func (q *Queue[T]) Push(v T) error {
	w := q.write.Load()
	r := q.read.Load()

	wi := w % q.size
	if (wi+1)%q.size == r%q.size {
		return ErrQueueFull
	}

	q.slots[wi] = v
	// Publish after the slot write; the consumer loads write before
	// reading the slot.
	q.write.Store(q.next(w))
	return nil
}

// Pop removes the oldest item. It returns false, with no side effects,
// when the queue is empty. Consumer only.
func (q *Queue[T]) Pop() (T, bool) {
	r := q.read.Load()
	w := q.write.Load()

	ri := r % q.size
	if ri == w%q.size {
		var zero T
		return zero, false
	}

	v := q.slots[ri]
	// Drop the reference so the slot does not pin garbage until reuse
	var zero T
	q.slots[ri] = zero
	q.read.Store(q.next(r))
	return v, true
}

// Len returns the number of queued items. Exact when called by the
// producer or the consumer, a snapshot otherwise.
func (q *Queue[T]) Len() int {
	w := q.write.Load()
	r := q.read.Load()
	return int((w + q.wrap - r) % q.wrap)
}

// Empty reports whether no items are queued
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Cap returns the number of items the queue can hold (capacity - 1)
func (q *Queue[T]) Cap() int {
	return int(q.size) - 1
}
