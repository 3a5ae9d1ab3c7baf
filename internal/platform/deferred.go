package platform

import "sync"

// DeferredCallQueue holds capsule bottom halves: work queued from interrupt
// handlers or deep call stacks that must run from the kernel loop instead.
// Calls run FIFO, one per Service.
type DeferredCallQueue struct {
	mu    sync.Mutex
	queue []func()
}

// NewDeferredCallQueue creates an empty queue.
func NewDeferredCallQueue() *DeferredCallQueue { return &DeferredCallQueue{} }

// Defer queues f. Safe to call from interrupt handlers.
func (q *DeferredCallQueue) Defer(f func()) {
	if f == nil {
		return
	}
	q.mu.Lock()
	q.queue = append(q.queue, f)
	q.mu.Unlock()
}

// HasPending reports whether any deferred call is queued.
func (q *DeferredCallQueue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue) > 0
}

// Service runs the oldest deferred call. Reports false when the queue was
// empty.
func (q *DeferredCallQueue) Service() bool {
	q.mu.Lock()
	if len(q.queue) == 0 {
		q.mu.Unlock()
		return false
	}
	f := q.queue[0]
	q.queue = q.queue[1:]
	q.mu.Unlock()
	f()
	return true
}
