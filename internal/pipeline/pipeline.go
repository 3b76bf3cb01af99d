// Package pipeline runs one complete feed build: load the catalog, crawl
// every novel through the worker pool, assemble the feed, store it and
// announce it.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/dispatcher"
	"github.com/JakeFAU/paid-chapter-feed/internal/extract"
	"github.com/JakeFAU/paid-chapter-feed/internal/feed"
	"github.com/JakeFAU/paid-chapter-feed/internal/metrics"
	"github.com/JakeFAU/paid-chapter-feed/internal/normalize"
	"github.com/JakeFAU/paid-chapter-feed/internal/queue/memory"
	"github.com/JakeFAU/paid-chapter-feed/internal/worker"
)

// ErrRunInProgress is returned when a build is requested while another runs.
var ErrRunInProgress = errors.New("feed build already running")

const (
	// DefaultAdultRole is appended to the mention of adult titles.
	DefaultAdultRole = "<@&1304077473998442506>"

	outputTimeout = 60 * time.Second
)

// Config controls one feed build.
type Config struct {
	Workers         int
	StalenessWindow time.Duration
	AdultRole       string
	Headers         http.Header
	Channel         feed.Channel
	ObjectName      string
	Topic           string
	RunTimeout      time.Duration
}

// Deps are the collaborators of a Runner. Catalog, Fetcher and Blob are
// required; the rest may be nil.
type Deps struct {
	Catalog         catalog.Source
	Fetcher         crawler.Fetcher
	HeadlessFetcher crawler.Fetcher
	Detector        crawler.HeadlessDetector
	Limiter         crawler.RateLimiter
	Retry           crawler.RetryPolicy
	Blob            crawler.BlobStore
	Publisher       crawler.Publisher
	Runs            crawler.RunStore
	Hasher          crawler.Hasher
	Clock           crawler.Clock
	IDs             crawler.IDGenerator
}

// CollectOptions tunes a crawl over the catalog.
type CollectOptions struct {
	Window         time.Duration
	SkipQuickCheck bool
}

// Runner builds feeds. At most one build runs at a time.
type Runner struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// New constructs a Runner, filling defaults for unset configuration.
func New(deps Deps, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Channel == (feed.Channel{}) {
		cfg.Channel = feed.DefaultChannel()
	}
	if cfg.ObjectName == "" {
		cfg.ObjectName = feed.DefaultObjectName
	}
	if cfg.AdultRole == "" {
		cfg.AdultRole = DefaultAdultRole
	}
	cfg.Workers = dispatcher.PoolSize(cfg.Workers)
	return &Runner{deps: deps, cfg: cfg, logger: logger.Named("pipeline")}
}

// Running reports whether a build is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run executes one build synchronously and returns its summary. The error is
// non-nil only when the catalog cannot be loaded or the feed cannot be stored.
func (r *Runner) Run(ctx context.Context) (crawler.RunSummary, error) {
	summary, err := r.begin(ctx)
	if err != nil {
		return summary, err
	}
	return r.execute(ctx, summary)
}

// Start reserves the build slot and runs the build in the background. It
// returns the run ID as soon as the run is recorded.
func (r *Runner) Start(ctx context.Context) (string, error) {
	summary, err := r.begin(ctx)
	if err != nil {
		return "", err
	}
	go func() {
		if _, err := r.execute(ctx, summary); err != nil {
			r.logger.Error("feed build failed", zap.String("run_id", summary.ID), zap.Error(err))
		}
	}()
	return summary.ID, nil
}

func (r *Runner) begin(ctx context.Context) (crawler.RunSummary, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return crawler.RunSummary{}, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	id, err := r.newID()
	if err != nil {
		r.release()
		return crawler.RunSummary{}, err
	}
	summary := crawler.RunSummary{
		ID:        id,
		Status:    crawler.RunStatusRunning,
		StartedAt: r.now(),
	}
	r.save(ctx, summary)
	return summary, nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, summary crawler.RunSummary) (crawler.RunSummary, error) {
	defer r.release()
	logger := r.logger.With(zap.String("run_id", summary.ID))
	logger.Info("feed build started")

	runCtx := ctx
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	err := r.build(runCtx, &summary, logger)
	finished := r.now()
	summary.FinishedAt = &finished
	if err != nil {
		summary.Status = crawler.RunStatusFailed
		summary.ErrorText = err.Error()
		logger.Error("feed build failed", zap.Error(err))
	} else {
		summary.Status = crawler.RunStatusSucceeded
		logger.Info("feed build finished",
			zap.Int("novels", summary.NovelsTotal),
			zap.Int("extracted", summary.NovelsExtracted),
			zap.Int("failed", summary.NovelsFailed),
			zap.Int("items", summary.Items),
			zap.String("uri", summary.OutputURI),
			zap.Duration("duration", finished.Sub(summary.StartedAt)),
		)
	}
	metrics.ObserveRun(string(summary.Status), summary.Items, finished.Sub(summary.StartedAt), finished)
	r.save(context.WithoutCancel(ctx), summary)
	return summary, err
}

func (r *Runner) build(ctx context.Context, summary *crawler.RunSummary, logger *zap.Logger) error {
	cat, err := r.deps.Catalog.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	summary.NovelsTotal = cat.Len()

	results, err := r.Collect(ctx, cat, CollectOptions{Window: r.cfg.StalenessWindow})
	if err != nil {
		logger.Warn("crawl ended early", zap.Error(err))
	}
	if ctx.Err() != nil {
		logger.Warn("feed build interrupted, writing partial feed", zap.Error(ctx.Err()))
	}
	records := r.merge(results, summary, logger)

	doc := feed.Build(r.cfg.Channel, records, r.now())
	data, err := feed.Marshal(doc)
	if err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	summary.Items = len(doc.Items)
	if r.deps.Hasher != nil {
		digest, err := r.deps.Hasher.Hash(data)
		if err != nil {
			return fmt.Errorf("hash feed: %w", err)
		}
		summary.Digest = digest
	}

	// The document is complete even when the crawl was cut short, so the
	// write runs outside the crawl's cancellation.
	outCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outputTimeout)
	defer cancel()
	uri, err := r.deps.Blob.PutObject(outCtx, r.cfg.ObjectName, feed.ContentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	summary.OutputURI = uri
	r.publish(outCtx, crawler.FeedBuiltEvent{
		RunID:   summary.ID,
		URI:     uri,
		Items:   summary.Items,
		SHA256:  summary.Digest,
		BuiltAt: doc.LastBuildDate,
	}, logger)
	return nil
}

// Collect crawls every catalog entry through a fresh worker pool and returns
// one result per entry in catalog order.
func (r *Runner) Collect(
	ctx context.Context,
	cat *catalog.Catalog,
	opts CollectOptions,
) ([]crawler.NovelResult, error) {
	entries := cat.Entries()
	if len(entries) == 0 {
		return nil, nil
	}
	size := r.cfg.Workers
	if size > len(entries) {
		size = len(entries)
	}
	q := memory.NewQueue(size)
	deps := worker.Deps{
		Queue:           q,
		Fetcher:         r.deps.Fetcher,
		HeadlessFetcher: r.deps.HeadlessFetcher,
		Detector:        r.deps.Detector,
		Limiter:         r.deps.Limiter,
		Retry:           r.deps.Retry,
		Extractor:       extract.New(opts.Window),
		Normalizer:      normalize.New(cat, r.cfg.AdultRole),
		Clock:           r.deps.Clock,
	}
	wcfg := worker.Config{Headers: r.cfg.Headers, SkipQuickCheck: opts.SkipQuickCheck}
	runners := make([]dispatcher.Runner, 0, size)
	for i := 0; i < size; i++ {
		runners = append(runners, worker.New(deps, wcfg, r.logger.Named("worker")))
	}
	results, err := dispatcher.New(q, runners).Run(ctx, entries)
	if err != nil {
		return results, fmt.Errorf("collect: %w", err)
	}
	return results, nil
}

// merge flattens the result slots, tallies outcomes and drops records whose
// novel has no translator.
func (r *Runner) merge(
	results []crawler.NovelResult,
	summary *crawler.RunSummary,
	logger *zap.Logger,
) []crawler.ChapterRecord {
	var records []crawler.ChapterRecord
	for _, res := range results {
		switch res.Outcome {
		case crawler.OutcomeExtracted:
			summary.NovelsExtracted++
		case crawler.OutcomeSkipped, crawler.OutcomeEmpty:
			summary.NovelsSkipped++
		case crawler.OutcomeFetchFailed, crawler.OutcomePanicked:
			summary.NovelsFailed++
		}
		dropped := 0
		for _, rec := range res.Records {
			summary.RecordsExtracted++
			if rec.Translator == "" {
				dropped++
				continue
			}
			records = append(records, rec)
		}
		if dropped > 0 {
			logger.Warn("dropping chapters of novel without translator",
				zap.String("novel", res.Title),
				zap.Int("chapters", dropped),
			)
			summary.RecordsDropped += dropped
			metrics.ObserveDropped("no_translator", dropped)
		}
	}
	return records
}

func (r *Runner) publish(ctx context.Context, event crawler.FeedBuiltEvent, logger *zap.Logger) {
	if r.deps.Publisher == nil || r.cfg.Topic == "" {
		return
	}
	msgID, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, event)
	if err != nil {
		logger.Warn("feed notification failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("feed notification published", zap.String("topic", r.cfg.Topic), zap.String("message_id", msgID))
}

func (r *Runner) save(ctx context.Context, summary crawler.RunSummary) {
	if r.deps.Runs == nil {
		return
	}
	if err := r.deps.Runs.SaveRun(ctx, summary); err != nil {
		r.logger.Warn("save run summary failed", zap.String("run_id", summary.ID), zap.Error(err))
	}
}

func (r *Runner) newID() (string, error) {
	if r.deps.IDs == nil {
		return r.now().Format("20060102T150405Z"), nil
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (r *Runner) now() time.Time {
	if r.deps.Clock == nil {
		return time.Now().UTC()
	}
	return r.deps.Clock.Now().UTC()
}
