package queue

import "sync"

// Queue is a generic FIFO buffer that keeps every item it has seen and a cursor
// marking how far a consumer has processed. It is safe for concurrent use.
type Queue[T any] struct {
	mu        sync.Mutex
	items     []T
	processed int
}

// New creates and returns a new Queue instance.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: []T{}}
}

// Enqueue adds an element to the end of the queue.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// MarkProcessed moves the processed cursor to the current end of the queue and
// returns the new cursor.
func (q *Queue[T]) MarkProcessed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processed = len(q.items)
	return q.processed
}

// Processed returns the processed cursor.
func (q *Queue[T]) Processed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

// Unprocessed returns a copy of the items after the processed cursor.
func (q *Queue[T]) Unprocessed() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items)-q.processed)
	copy(out, q.items[q.processed:])
	return out
}

// Reset drops every item and rewinds the cursor.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	q.items = []T{}
	q.processed = 0
	q.mu.Unlock()
}
