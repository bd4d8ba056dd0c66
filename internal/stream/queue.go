package stream

import (
	"context"
	"io"
	"sync"

	"github.com/roach88/treecep/internal/ir"
)

// Queue is a live, unbounded FIFO source. Producers call Enqueue from any
// goroutine; a single consumer reads with Next. After Close, Next drains
// the remaining events and then returns io.EOF.
//
// The queue uses a channel for signaling so a blocked Next honours
// context cancellation.
type Queue struct {
	mu     sync.Mutex
	events []*ir.Event
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		events: make([]*ir.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false if the queue is closed.
func (q *Queue) Enqueue(e *ir.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *Queue) TryDequeue() (*ir.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil, false
	}
	e := q.events[0]

	// Clear the slot so the backing array does not retain the event.
	q.events[0] = nil
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Next implements Source.
func (q *Queue) Next(ctx context.Context) (*ir.Event, error) {
	for {
		if e, ok := q.TryDequeue(); ok {
			return e, nil
		}

		q.mu.Lock()
		done := q.closed && len(q.events) == 0
		q.mu.Unlock()
		if done {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued and wakes the
// consumer.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
