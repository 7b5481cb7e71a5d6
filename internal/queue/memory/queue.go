// Package memory provides the bounded in-memory write queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mossishahi/flightnet/internal/flight"
)

// ErrClosed is returned once the queue is closed: immediately by Enqueue,
// and by Dequeue after the remaining buffered batches have been drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory batch queue with context-aware operations.
// The capacity is the backpressure bound: when the writer falls behind,
// producers block on Enqueue instead of buffering without limit or
// dropping rows. Termination is a property of the channel itself: Close
// ends the stream, there is no in-band sentinel batch.
type Queue struct {
	ch      chan flight.Batch
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan flight.Batch, capacity),
	}
}

// Enqueue pushes a batch into the queue, blocking while it is full.
// Returns ErrClosed after Close, or the context error if ctx ends first.
func (q *Queue) Enqueue(ctx context.Context, batch flight.Batch) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- batch:
		return nil
	}
}

// Dequeue pops the next batch, respecting context cancellation. After
// Close it keeps returning buffered batches until the queue is empty,
// then reports ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (flight.Batch, error) {
	select {
	case <-ctx.Done():
		return flight.Batch{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case batch, ok := <-q.ch:
		if !ok {
			return flight.Batch{}, ErrClosed
		}
		return batch, nil
	}
}

// Len reports the number of batches currently buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close ends the stream. Safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
