// Package worker runs the per-novel fetch, extract and normalize pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/extract"
	"github.com/JakeFAU/paid-chapter-feed/internal/metrics"
	"github.com/JakeFAU/paid-chapter-feed/internal/normalize"
	"github.com/JakeFAU/paid-chapter-feed/internal/queue"
)

// Config controls Worker behavior.
type Config struct {
	// Headers are sent with every page request.
	Headers http.Header
	// SkipQuickCheck extracts every page even when its newest chapter is free
	// or stale. The audit command sets it.
	SkipQuickCheck bool
}

// Deps are the collaborators a Worker needs. Fetcher, Extractor and Normalizer
// are required; the rest may be nil.
type Deps struct {
	Queue           crawler.Queue
	Fetcher         crawler.Fetcher
	HeadlessFetcher crawler.Fetcher
	Detector        crawler.HeadlessDetector
	Limiter         crawler.RateLimiter
	Retry           crawler.RetryPolicy
	Extractor       *extract.Extractor
	Normalizer      *normalize.Normalizer
	Clock           crawler.Clock
}

// Worker consumes novel tasks and writes one result per task.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run consumes tasks until the queue is closed and drained or the context
// ends. Each task writes results[task.Index] and nothing else.
func (w *Worker) Run(ctx context.Context, results []crawler.NovelResult) error {
	for {
		task, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		if task.Index < 0 || task.Index >= len(results) {
			w.logger.Error("task index out of range",
				zap.Int("index", task.Index),
				zap.String("novel", task.Entry.Title),
			)
			continue
		}
		metrics.IncActiveWorkers()
		results[task.Index] = w.Process(ctx, task.Entry)
		metrics.DecActiveWorkers()
	}
}

// Process runs the pipeline for one novel. Failures and panics are captured in
// the result and never returned.
func (w *Worker) Process(ctx context.Context, entry crawler.CatalogEntry) (result crawler.NovelResult) {
	logger := w.logger.With(zap.String("novel", entry.Title), zap.String("url", entry.SourceURL))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("novel pipeline panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			result = crawler.NovelResult{
				Title:   entry.Title,
				Outcome: crawler.OutcomePanicked,
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
		metrics.ObserveNovel(string(result.Outcome))
	}()
	return w.process(ctx, entry, logger)
}

func (w *Worker) process(ctx context.Context, entry crawler.CatalogEntry, logger *zap.Logger) crawler.NovelResult {
	result := crawler.NovelResult{Title: entry.Title}
	now := w.now()

	resp, err := w.fetch(ctx, w.deps.Fetcher, crawler.FetchRequest{URL: entry.SourceURL, Headers: w.cfg.Headers})
	if err != nil {
		logger.Warn("novel page fetch failed", zap.Error(err))
		result.Outcome = crawler.OutcomeFetchFailed
		result.Err = err
		return result
	}
	resp = w.maybePromote(ctx, entry, resp, logger)
	result.UsedHeadless = resp.UsedHeadless

	doc, err := extract.Parse(resp.Body)
	if err != nil {
		logger.Warn("novel page unparseable", zap.Error(err))
		result.Outcome = crawler.OutcomeEmpty
		result.Err = err
		return result
	}

	if !w.cfg.SkipQuickCheck && !w.deps.Extractor.QuickCheck(doc, now) {
		logger.Debug("no recent paid chapter, skipping novel")
		result.Outcome = crawler.OutcomeSkipped
		return result
	}

	extracted := w.deps.Extractor.Extract(doc, now)
	if len(extracted.Chapters) == 0 {
		logger.Debug("no paid chapters extracted",
			zap.String("strategy", extracted.Strategy),
			zap.Int("inspected", extracted.Inspected),
		)
		result.Outcome = crawler.OutcomeEmpty
		return result
	}

	result.Records = make([]crawler.ChapterRecord, 0, len(extracted.Chapters))
	for _, raw := range extracted.Chapters {
		result.Records = append(result.Records, w.deps.Normalizer.Normalize(entry, raw, extracted.Synopsis, now))
	}
	result.Outcome = crawler.OutcomeExtracted
	metrics.ObserveChapters(len(result.Records))
	logger.Debug("paid chapters extracted",
		zap.String("strategy", extracted.Strategy),
		zap.Int("chapters", len(result.Records)),
		zap.Bool("stopped_at_stale", extracted.StoppedAtStale),
		zap.Bool("headless", result.UsedHeadless),
	)
	return result
}

func (w *Worker) maybePromote(
	ctx context.Context,
	entry crawler.CatalogEntry,
	resp crawler.FetchResponse,
	logger *zap.Logger,
) crawler.FetchResponse {
	if w.deps.Detector == nil || w.deps.HeadlessFetcher == nil {
		return resp
	}
	if !w.deps.Detector.ShouldPromote(resp) {
		return resp
	}
	headlessResp, err := w.fetch(ctx, w.deps.HeadlessFetcher, crawler.FetchRequest{
		URL:         entry.SourceURL,
		UseHeadless: true,
		Headers:     w.cfg.Headers,
	})
	if err != nil {
		logger.Warn("headless promotion failed", zap.Error(err))
		return resp
	}
	headlessResp.UsedHeadless = true
	logger.Info("headless promotion applied")
	return headlessResp
}

// fetch applies pacing and the retry policy around one fetcher.
func (w *Worker) fetch(ctx context.Context, f crawler.Fetcher, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	kind := "http"
	if req.UseHeadless {
		kind = "headless"
	}
	for attempt := 0; ; attempt++ {
		if w.deps.Limiter != nil {
			if err := w.deps.Limiter.Wait(ctx, req.URL); err != nil {
				return crawler.FetchResponse{}, err
			}
		}
		start := time.Now()
		resp, err := f.Fetch(ctx, req)
		metrics.ObserveFetch(req.URL, kind, resp.StatusCode, time.Since(start))
		if err == nil {
			return resp, nil
		}
		if w.deps.Retry == nil || !w.deps.Retry.ShouldRetry(err, attempt+1) {
			return crawler.FetchResponse{}, fmt.Errorf("%s fetch: %w", kind, err)
		}
		delay := w.deps.Retry.Backoff(attempt)
		w.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return crawler.FetchResponse{}, err
		}
	}
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now().UTC()
	}
	return w.deps.Clock.Now().UTC()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
