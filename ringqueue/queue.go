/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ringqueue

import (
	"fmt"
	"sync"
)

// Opts represents options for the Queue.
type Opts[T any] struct {
	// MetricsCollector is used to collect statistics about queue usage.
	// It can be nil, in this case, metrics will be disabled.
	MetricsCollector MetricsCollector

	// EvictionHandler is called (outside the queue lock) with every item
	// that was overwritten because the queue was full.
	EvictionHandler func(item T)
}

// Queue is a bounded FIFO queue with overwrite-oldest semantics on overflow.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // read cursor
	tail  int // write cursor
	size  int

	onEvict          func(item T)
	metricsCollector MetricsCollector
}

// New creates a new Queue with the provided capacity.
func New[T any](capacity int) (*Queue[T], error) {
	return NewWithOpts[T](capacity, Opts[T]{})
}

// NewWithOpts creates a new Queue with the provided capacity and options.
// Zero capacity is allowed: such a queue never holds anything and every offered item is evicted at once.
func NewWithOpts[T any](capacity int, opts Opts[T]) (*Queue[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("capacity must be greater or equal to 0, got %d", capacity)
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	return &Queue[T]{
		items:            make([]T, capacity),
		onEvict:          opts.EvictionHandler,
		metricsCollector: opts.MetricsCollector,
	}, nil
}

// Offer appends the item to the tail of the queue. It always succeeds and returns true.
// If the queue is full, the oldest unread item (the one Poll would return next) is overwritten.
func (q *Queue[T]) Offer(item T) bool {
	q.mu.Lock()
	evicted, wasEvicted := q.offer(item)
	size := q.size
	q.mu.Unlock()

	q.metricsCollector.SetSize(size)
	if wasEvicted {
		q.evicted(evicted)
	}
	return true
}

// Poll removes and returns the oldest item. The second return value is false if the queue is empty.
func (q *Queue[T]) Poll() (item T, ok bool) {
	q.mu.Lock()
	item, ok = q.poll()
	size := q.size
	q.mu.Unlock()

	if ok {
		q.metricsCollector.SetSize(size)
	}
	return item, ok
}

// PollOffer removes the oldest item and appends the given one in a single step.
// If the queue is empty, the given item is returned as is and the queue stays empty.
// Unlike Offer followed by Poll, it never evicts anything when the queue is full.
func (q *Queue[T]) PollOffer(item T) T {
	q.mu.Lock()
	defer q.mu.Unlock()

	head, ok := q.poll()
	if !ok {
		return item
	}
	q.offer(item)
	return head
}

// Peek returns the oldest item without removing it. The second return value is false if the queue is empty.
func (q *Queue[T]) Peek() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return item, false
	}
	return q.items[q.head], true
}

// Len returns the current number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// IsEmpty reports whether the queue has no items.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Cap returns the capacity the queue was created with.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// Snapshot returns a copy of the queue contents in FIFO order (oldest first).
func (q *Queue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	res := make([]T, 0, q.size)
	for i := 0; i < q.size; i++ {
		res = append(res, q.items[(q.head+i)%len(q.items)])
	}
	return res
}

// Range calls fn for every item of a point-in-time snapshot of the queue in FIFO order.
// Iteration stops when fn returns false. Concurrent modifications of the queue are not visible to fn.
func (q *Queue[T]) Range(fn func(item T) bool) {
	for _, item := range q.Snapshot() {
		if !fn(item) {
			return
		}
	}
}

// Clear removes all items from the queue and returns how many were removed.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	n := q.size
	var zero T
	for i := range q.items {
		q.items[i] = zero
	}
	q.head, q.tail, q.size = 0, 0, 0
	q.mu.Unlock()

	q.metricsCollector.SetSize(0)
	return n
}

func (q *Queue[T]) offer(item T) (evicted T, wasEvicted bool) {
	if len(q.items) == 0 {
		return item, true
	}
	if q.size == len(q.items) {
		evicted, wasEvicted = q.poll()
	}
	q.items[q.tail] = item
	q.tail = (q.tail + 1) % len(q.items)
	q.size++
	return evicted, wasEvicted
}

func (q *Queue[T]) poll() (item T, ok bool) {
	if q.size == 0 {
		return item, false
	}
	var zero T
	item = q.items[q.head]
	q.items[q.head] = zero // release the reference
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item, true
}

func (q *Queue[T]) evicted(item T) {
	q.metricsCollector.IncEvictions()
	if q.onEvict != nil {
		q.onEvict(item)
	}
}
