package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"bookcore/internal/schema"
)

var (
	ErrQueueFull   = errors.New("instruction queue full")
	ErrQueueClosed = errors.New("instruction queue closed")
)

// Event is one decoded instruction on its way to the ledger writer.
// Seq numbers instructions in decode order, starting at 1.
type Event struct {
	Seq         uint64
	Instruction schema.Instruction
}

// Queue is a bounded single-consumer queue.
type Queue struct {
	ch     chan Event
	closed atomic.Bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish enqueues an event, waiting for space until ctx is done.
// Must not race with Close.
func (q *Queue) Publish(ctx context.Context, e Event) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events. Queued events are still delivered by Run.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
