// Package queue provides the FIFO used for response queues and port arbitration.
package queue

// FIFO is an unbounded first-in first-out queue backed by a slice.
// It is not safe for concurrent use; participants only touch it from kernel callbacks.
type FIFO[T any] struct {
	items []T
	head  int
}

// NewFIFO creates a FIFO with room for prealloc items.
func NewFIFO[T any](prealloc int) *FIFO[T] {
	return &FIFO[T]{items: make([]T, 0, prealloc)}
}

// Enqueue appends item to the tail.
func (q *FIFO[T]) Enqueue(item T) {
	// compact once the consumed prefix dominates the backing array
	if q.head > 0 && q.head >= len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.items = append(q.items, item)
}

// Dequeue removes the head item. It returns false when the queue is empty.
func (q *FIFO[T]) Dequeue() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	return item, true
}

// IsEmpty reports whether no item is queued.
func (q *FIFO[T]) IsEmpty() bool { return q.head >= len(q.items) }

// Length returns the number of queued items.
func (q *FIFO[T]) Length() int { return len(q.items) - q.head }
