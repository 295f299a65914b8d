// Package dispatch hands accepted connections from the acceptor to the worker
// pool.
//
// Queue is an unbounded FIFO guarded by one mutex and one condition variable.
// Push and Pop are the only critical sections; callers do their I/O outside the
// lock.
package dispatch

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("dispatch: queue closed")

// Queue is an unbounded, blocking-pop FIFO shared by one producer and many
// consumers. Each pushed item is returned by exactly one Pop.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item and wakes one waiting consumer. It fails only after Close.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// Pop removes and returns the head, suspending while the queue is empty. It
// returns ok=false once the queue has been closed.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.len() == 0 {
		if q.closed {
			return item, false
		}
		q.cond.Wait()
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

// Close rejects further pushes and wakes every waiter. Items still queued are
// returned to the caller so it can release them.
func (q *Queue[T]) Close() []T {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	rest := make([]T, q.len())
	copy(rest, q.items[q.head:])
	q.items = nil
	q.head = 0
	q.mu.Unlock()
	q.cond.Broadcast()
	return rest
}

func (q *Queue[T]) len() int {
	return len(q.items) - q.head
}
