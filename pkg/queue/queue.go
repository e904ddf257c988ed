package queue

import (
	"errors"
	"sync"
)

var ErrEmpty = errors.New("queue is empty")

// Queue is a FIFO queue backed by a slice with a moving head index, so
// enqueue and dequeue are O(1) without a pointer-chained list.
type Queue[T any] struct {
	items []T
	head  int
	mu    sync.Mutex
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Dequeue removes and returns the oldest item, or ErrEmpty.
func (q *Queue[T]) Dequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == len(q.items) {
		return zero, ErrEmpty
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return item, nil
}

// Peek returns the oldest item without removing it, or ErrEmpty.
func (q *Queue[T]) Peek() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == len(q.items) {
		return zero, ErrEmpty
	}
	return q.items[q.head], nil
}

func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Items returns a copy of the queued items in FIFO order without
// mutating the queue. Used for persistence snapshots.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]T, len(q.items)-q.head)
	copy(result, q.items[q.head:])
	return result
}
