// Package dispatcher fans catalog entries out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

// MaxWorkers is the ceiling on concurrently running novel pipelines.
const MaxWorkers = 100

// Runner consumes tasks and writes results[task.Index].
type Runner interface {
	Run(ctx context.Context, results []crawler.NovelResult) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Runner
}

// New creates a Dispatcher. Workers beyond MaxWorkers are ignored.
func New(queue crawler.Queue, workers []Runner) *Dispatcher {
	if len(workers) > MaxWorkers {
		workers = workers[:MaxWorkers]
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// PoolSize clamps a configured worker count to [1, MaxWorkers].
func PoolSize(n int) int {
	switch {
	case n <= 0:
		return MaxWorkers
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

// Run enqueues one task per entry, runs every worker until the queue drains
// and returns the per-entry results in entry order. On cancellation the
// slots of unfinished entries are left zero.
func (d *Dispatcher) Run(ctx context.Context, entries []crawler.CatalogEntry) ([]crawler.NovelResult, error) {
	if len(d.workers) == 0 {
		return nil, errors.New("dispatcher has no workers")
	}
	results := make([]crawler.NovelResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer d.queue.Close()
		for i, entry := range entries {
			if err := d.queue.Enqueue(gctx, crawler.Task{Index: i, Entry: entry}); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("queue enqueue: %w", err)
			}
		}
		return nil
	})

	for _, w := range d.workers {
		g.Go(func() error {
			return w.Run(gctx, results)
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("dispatch: %w", err)
	}
	return results, nil
}
