// Package queue decouples the radio callback from network delivery with a
// FIFO that never blocks the producer.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop once the queue is closed and drained
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO for one producer and one consumer. With capacity 0 it
// grows without bound; otherwise Push drops the newest item when full.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	capacity int
	closed   bool
	dropped  uint64
	notify   chan struct{}
}

// New creates a queue; capacity <= 0 means unbounded
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		capacity: max(capacity, 0),
		notify:   make(chan struct{}, 1),
	}
}

// Push appends v and returns immediately. It reports false when v was
// dropped because the queue is full or closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed || (q.capacity > 0 && q.lenLocked() >= q.capacity) {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest item, waiting until one is available, the queue
// is closed and empty, or ctx is done
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			v := q.items[q.head]
			q.items[q.head] = zero
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			} else if q.head > 64 && q.head*2 >= len(q.items) {
				q.items = append(q.items[:0], q.items[q.head:]...)
				q.head = 0
			}
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return zero, ErrClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns how many pushes were discarded
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting items. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}
