package crawler

import (
	"context"
	"io"
	"time"
)

// BlobStore writes the rendered feed and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes feed-built events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for novel tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
	Close()
}

// RateLimiter paces outbound requests per host.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// RetryPolicy decides whether and when a failed fetch is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// RunStore keeps summaries of recent feed builds.
type RunStore interface {
	SaveRun(ctx context.Context, run RunSummary) error
	GetRun(ctx context.Context, id string) (RunSummary, error)
	LatestRun(ctx context.Context) (RunSummary, error)
}

// Hasher computes digests for integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
