package router

import (
	"sync"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
)

// Queue buffers events for QUEUED delivery. Implementations must be safe
// for concurrent use.
type Queue interface {
	// Enqueue appends an event.
	Enqueue(evt *event.Event) error

	// Dequeue removes and returns the oldest event.
	Dequeue() (*event.Event, bool)

	// Len returns the number of buffered events.
	Len() int
}

// MemoryQueue is an unbounded, mutex-guarded FIFO.
type MemoryQueue struct {
	mu     sync.Mutex
	events []*event.Event
}

// Compile-time interface check.
var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(evt *event.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, evt)
	return nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue() (*event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	evt := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return evt, true
}

// Len implements Queue.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// IsEmpty reports whether the queue holds no events.
func (q *MemoryQueue) IsEmpty() bool {
	return q.Len() == 0
}
