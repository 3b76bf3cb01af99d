package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	task := crawler.Task{Index: 3, Entry: crawler.CatalogEntry{Title: "Moon Song"}}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Index != 3 || got.Entry.Title != "Moon Song" {
			t.Fatalf("unexpected task %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), crawler.Task{Index: 0}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, crawler.Task{Index: 1}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsBufferedTasks(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(context.Background(), crawler.Task{Index: i}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	q.Close()

	for i := 0; i < 2; i++ {
		task, err := q.Dequeue(context.Background())
		if err != nil || task.Index != i {
			t.Fatalf("expected buffered task %d, got %+v err=%v", i, task, err)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, queue.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
