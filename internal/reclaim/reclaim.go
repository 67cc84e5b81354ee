// Package reclaim turns garbage-collector cleanups into deterministic work.
//
// Cleanup callbacks registered with runtime.AddCleanup run on a runtime
// goroutine at an arbitrary time. Indices owned by a table must only be
// mutated on the table's own goroutine, so a cleanup never touches an index
// directly: it pushes a prune function onto a Queue, and the owner calls
// Drain at the start of every operation.
package reclaim

import (
	"runtime"
	"sync"
)

// Queue is a mutex-guarded FIFO of pending prune functions.
//
// Push may be called from any goroutine. Drain must be called by the owner.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	drained int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make([]func(), 0, 16)}
}

// Push adds a prune function to the back of the queue.
func (q *Queue) Push(prune func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, prune)
}

// Drain runs every pending prune function in push order and returns how
// many ran. Functions pushed while draining run in the same call.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		if len(batch) == 0 {
			break
		}
		for i, prune := range batch {
			batch[i] = nil
			prune()
		}
		n += len(batch)
	}

	if n > 0 {
		q.mu.Lock()
		q.drained += n
		q.mu.Unlock()
	}
	return n
}

// Len returns the number of pending prune functions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drained returns the total number of prune functions run so far.
func (q *Queue) Drained() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drained
}

// Watch schedules prune on q once ptr becomes unreachable.
//
// prune must not reference ptr, or ptr will never become unreachable.
func Watch[T any](q *Queue, ptr *T, prune func()) runtime.Cleanup {
	return runtime.AddCleanup(ptr, q.Push, prune)
}
