// Package queue implements the bounded FIFO between the sampling loop and the
// delivery worker.
//
// The queue has a fixed capacity. When it is full, Put discards the oldest
// pending item to admit the new one: metrics are a lossy time series and a
// stale snapshot is worth less than a fresh one.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// Queue is a thread-safe bounded FIFO with a drop-oldest overflow policy.
type Queue struct {
	mu sync.Mutex

	// buf is a ring buffer of len capacity; head is the oldest item
	buf  []Item
	head int
	size int

	// closed is set once a Shutdown item has been accepted
	closed bool

	// ready has one slot and is signalled whenever an item is added
	ready chan struct{}

	dropped  atomic.Uint64
	rejected atomic.Uint64
}

// New creates a queue holding at most capacity items.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		buf:   make([]Item, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Put enqueues an item. If the queue is full the oldest pending item is
// discarded. Once a Shutdown item has been accepted every later Put is
// ignored, so the sentinel can never be pushed out by overflow.
func (q *Queue) Put(item Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.rejected.Add(1)
		return
	}
	if q.size == len(q.buf) {
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped.Add(1)
	}
	q.buf[(q.head+q.size)%len(q.buf)] = item
	q.size++
	if _, ok := item.(Shutdown); ok {
		q.closed = true
	}
	q.mu.Unlock()

	q.signal()
}

// Get blocks until an item is available and returns it in FIFO order.
//
// It returns ctx.Err() if ctx ends first. With a context that is never
// cancelled Get blocks until something is put, so every shutdown path must
// enqueue a Shutdown item.
func (q *Queue) Get(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			item := q.buf[q.head]
			q.buf[q.head] = nil
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			more := q.size > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Clear atomically discards every pending item and reports how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	for i := 0; i < q.size; i++ {
		q.buf[(q.head+i)%len(q.buf)] = nil
	}
	q.head = 0
	q.size = 0
	return n
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Dropped returns how many items were discarded by the overflow policy.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Rejected returns how many items were refused after shutdown.
func (q *Queue) Rejected() uint64 {
	return q.rejected.Load()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
