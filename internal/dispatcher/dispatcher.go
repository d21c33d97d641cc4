// Package dispatcher manages worker fan-out over the avatar queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/filmscraper/internal/catalog"
	"github.com/JakeFAU/filmscraper/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   catalog.AvatarQueue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue catalog.AvatarQueue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until they return, which happens when the
// context finishes or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job catalog.AvatarJob) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// TryEnqueue proxies to the underlying queue without blocking.
func (d *Dispatcher) TryEnqueue(job catalog.AvatarJob) error {
	if err := d.queue.TryEnqueue(job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Dequeue proxies to the underlying queue.
func (d *Dispatcher) Dequeue(ctx context.Context) (catalog.AvatarJob, error) {
	job, err := d.queue.Dequeue(ctx)
	if err != nil {
		return catalog.AvatarJob{}, fmt.Errorf("queue dequeue: %w", err)
	}
	return job, nil
}
