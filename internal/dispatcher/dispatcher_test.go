package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/queue"
	"github.com/JakeFAU/paid-chapter-feed/internal/queue/memory"
)

// echoWorker marks each slot with its entry title.
type echoWorker struct {
	q        crawler.Queue
	inFlight *atomic.Int32
	peak     *atomic.Int32
	delay    time.Duration
}

func (w *echoWorker) Run(ctx context.Context, results []crawler.NovelResult) error {
	for {
		task, err := w.q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if w.inFlight != nil {
			n := w.inFlight.Add(1)
			for {
				p := w.peak.Load()
				if n <= p || w.peak.CompareAndSwap(p, n) {
					break
				}
			}
		}
		time.Sleep(w.delay)
		results[task.Index] = crawler.NovelResult{Title: task.Entry.Title, Outcome: crawler.OutcomeExtracted}
		if w.inFlight != nil {
			w.inFlight.Add(-1)
		}
	}
}

func entries(n int) []crawler.CatalogEntry {
	out := make([]crawler.CatalogEntry, n)
	for i := range out {
		out[i] = crawler.CatalogEntry{Title: string(rune('A' + i%26)), SourceURL: "https://dragonholic.com/novel/x/"}
	}
	return out
}

func TestDispatcherRunFillsEverySlotInOrder(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	workers := []Runner{&echoWorker{q: q}, &echoWorker{q: q}, &echoWorker{q: q}}
	in := entries(20)

	results, err := New(q, workers).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		require.Equal(t, in[i].Title, r.Title)
		require.Equal(t, crawler.OutcomeExtracted, r.Outcome)
	}
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(0)
	var inFlight, peak atomic.Int32
	var workers []Runner
	for i := 0; i < 3; i++ {
		workers = append(workers, &echoWorker{q: q, inFlight: &inFlight, peak: &peak, delay: 5 * time.Millisecond})
	}

	_, err := New(q, workers).Run(context.Background(), entries(12))
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(3))
	require.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestDispatcherCancelLeavesPartialResults(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	w := &cancelAfterFirst{q: q, cancel: cancel}

	done := make(chan struct{})
	var results []crawler.NovelResult
	go func() {
		defer close(done)
		results, _ = New(q, []Runner{w}).Run(ctx, entries(5))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
	require.Len(t, results, 5)
	require.Equal(t, "A", results[0].Title)
	require.Empty(t, results[4].Title)
}

// cancelAfterFirst handles one task, cancels the run and stops consuming.
type cancelAfterFirst struct {
	q      crawler.Queue
	cancel context.CancelFunc
}

func (w *cancelAfterFirst) Run(ctx context.Context, results []crawler.NovelResult) error {
	task, err := w.q.Dequeue(ctx)
	if err != nil {
		return nil
	}
	results[task.Index] = crawler.NovelResult{Title: task.Entry.Title}
	w.cancel()
	return nil
}

func TestDispatcherWorkerErrorPropagates(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	_, err := New(q, []Runner{failingWorker{}}).Run(context.Background(), entries(3))
	require.Error(t, err)
	require.Contains(t, err.Error(), "worker exploded")
}

type failingWorker struct{}

func (failingWorker) Run(context.Context, []crawler.NovelResult) error {
	return errors.New("worker exploded")
}

func TestDispatcherRequiresWorkers(t *testing.T) {
	t.Parallel()

	_, err := New(memory.NewQueue(1), nil).Run(context.Background(), entries(1))
	require.Error(t, err)
}

func TestPoolSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, MaxWorkers, PoolSize(0))
	require.Equal(t, MaxWorkers, PoolSize(500))
	require.Equal(t, 8, PoolSize(8))
}

func TestNewCapsWorkers(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	workers := make([]Runner, MaxWorkers+5)
	for i := range workers {
		workers[i] = &echoWorker{q: q}
	}
	require.Len(t, New(q, workers).workers, MaxWorkers)
}
