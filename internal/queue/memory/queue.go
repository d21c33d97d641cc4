// Package memory provides the in-process avatar job queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

var (
	// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned once Close has been called.
	ErrQueueClosed = catalog.ErrQueueClosed
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan catalog.AvatarJob
	done    chan struct{}
	senders sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan catalog.AvatarJob, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job into the queue, waiting for room until the context
// ends or the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, job catalog.AvatarJob) error {
	q.closeMu.RLock()
	if q.closed {
		q.closeMu.RUnlock()
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.closeMu.RUnlock()
	defer q.senders.Done()

	// Close waits for blocked senders before closing ch, so the send is safe.
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- job:
		return nil
	}
}

// TryEnqueue pushes a job only if there is room right now.
func (q *Queue) TryEnqueue(job catalog.AvatarJob) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (catalog.AvatarJob, error) {
	select {
	case <-ctx.Done():
		return catalog.AvatarJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return catalog.AvatarJob{}, ErrQueueClosed
		}
		return job, nil
	}
}

// Len reports the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops new jobs, releases blocked Enqueue calls and closes the
// underlying channel. Buffered jobs can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.closeMu.Unlock()

	q.senders.Wait()
	close(q.ch)
}
