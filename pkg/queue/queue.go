// Package queue implements the FIFO queues that connect the network facing
// multiplexer with the protocol facing processor.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Push when a bounded queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned by Push after Close and by Pop once a closed
	// queue has been drained.
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is an ordered, multi producer, multi consumer queue. A capacity of
// zero means the queue is unbounded. Entries are delivered in the order they
// were pushed.
type Queue[T any] struct {
	mtx      sync.Mutex
	items    []T
	capacity int
	closed   bool

	// notify holds at most one pending wake up. It is signalled after every
	// push and whenever a pop leaves entries behind.
	notify chan struct{}
	done   chan struct{}
}

// New creates a queue. A capacity of zero or less creates an unbounded queue.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends v to the back of the queue.
func (q *Queue[T]) Push(v T) error {
	q.mtx.Lock()
	if q.closed {
		q.mtx.Unlock()
		return ErrQueueClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mtx.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, v)
	q.mtx.Unlock()

	q.signal()
	return nil
}

// TryPop removes and returns the entry at the front of the queue without
// blocking. The boolean is false if the queue was empty.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	q.mtx.Lock()
	if len(q.items) == 0 {
		q.mtx.Unlock()
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	if remaining == 0 {
		// release the backing array once drained
		q.items = nil
	}
	q.mtx.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return v, true
}

// Pop blocks until an entry is available, the context is cancelled or the
// queue is closed and empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-q.notify:
		case <-q.done:
			if v, ok := q.TryPop(); ok {
				return v, nil
			}
			return zero, ErrQueueClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Notify returns a channel that receives a value when entries may be
// available. It allows a queue to be used as one case of a select statement;
// callers should drain with TryPop after each notification.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notify
}

// Done is closed once Close has been called.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting new entries. Entries already queued
// can still be popped. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
