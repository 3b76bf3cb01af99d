// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
	"github.com/JakeFAU/paid-chapter-feed/internal/clock/system"
	"github.com/JakeFAU/paid-chapter-feed/internal/config"
	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/extract"
	collyfetcher "github.com/JakeFAU/paid-chapter-feed/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/paid-chapter-feed/internal/fetcher/headless"
	"github.com/JakeFAU/paid-chapter-feed/internal/feed"
	"github.com/JakeFAU/paid-chapter-feed/internal/hash/sha256"
	"github.com/JakeFAU/paid-chapter-feed/internal/headless/detector"
	"github.com/JakeFAU/paid-chapter-feed/internal/id/uuid"
	"github.com/JakeFAU/paid-chapter-feed/internal/logging"
	"github.com/JakeFAU/paid-chapter-feed/internal/metrics"
	"github.com/JakeFAU/paid-chapter-feed/internal/modified"
	"github.com/JakeFAU/paid-chapter-feed/internal/pipeline"
	"github.com/JakeFAU/paid-chapter-feed/internal/policy/ratelimit"
	pubmemory "github.com/JakeFAU/paid-chapter-feed/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/paid-chapter-feed/internal/publisher/pubsub"
	"github.com/JakeFAU/paid-chapter-feed/internal/storage/gcs"
	"github.com/JakeFAU/paid-chapter-feed/internal/storage/local"
	"github.com/JakeFAU/paid-chapter-feed/internal/storage/memory"
	"github.com/JakeFAU/paid-chapter-feed/internal/storage/postgres"
	"github.com/JakeFAU/paid-chapter-feed/internal/storage/sqlite"
)

// App holds the shared, long-lived services for one process. It is built once
// by the root command and closed when the command finishes.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	catalog  catalog.Source
	runs     *memory.RunStore
	runner   *pipeline.Runner
	modified *modified.Builder
	closers []func() error
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetRunner returns the feed build runner.
func (a *App) GetRunner() *pipeline.Runner {
	return a.runner
}

// GetModified returns the builder of the rewritten site feed.
func (a *App) GetModified() *modified.Builder {
	return a.modified
}

// GetRuns returns the run summary store.
func (a *App) GetRuns() crawler.RunStore {
	return a.runs
}

// GetCatalog returns the configured catalog source.
func (a *App) GetCatalog() catalog.Source {
	return a.catalog
}

// New creates and initializes an App from cfg. It fails fast if any
// configured backend cannot be initialized, releasing what it already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger, runs: memory.NewRunStore(0)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	logger.Info("initializing application services")

	if a.catalog, err = a.openCatalog(ctx); err != nil {
		return nil, fmt.Errorf("initialize catalog: %w", err)
	}
	blob, err := a.openOutput(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize output: %w", err)
	}
	publisher, err := a.openPublisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize publisher: %w", err)
	}

	base, maxDelay := cfg.BackoffBounds()
	deps := pipeline.Deps{
		Catalog: a.catalog,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
		}, nil),
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Crawler.RequestsPerSecond,
			DefaultBurst: cfg.Crawler.Burst,
		}),
		Retry:     crawler.NewRetryPolicy(cfg.HTTP.MaxRetries, base, maxDelay),
		Blob:      blob,
		Publisher: publisher,
		Runs:      a.runs,
		Hasher:    sha256.New(),
		Clock:     system.New(),
		IDs:       uuid.New(),
	}
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: secondsOf(cfg.Headless.NavTimeoutSec),
			SettleTimeout:     secondsOf(cfg.Headless.SettleTimeoutSec),
			WaitSelector:      extract.ChapterSelector,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed, continuing without promotion", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() error { hf.Close(); return nil })
			deps.HeadlessFetcher = hf
			deps.Detector = detector.NewHeuristic(cfg.Headless.PromotionThresh)
		}
	}

	topic := ""
	if publisher != nil {
		topic = cfg.PubSub.Topic
		if topic == "" {
			topic = "feed-built"
		}
	}
	a.runner = pipeline.New(deps, pipeline.Config{
		Workers:         cfg.Crawler.Workers,
		StalenessWindow: cfg.Crawler.StalenessWindow,
		AdultRole:       cfg.Feed.AdultRole,
		Headers:         http.Header{"Accept": {"text/html,application/xhtml+xml"}},
		Channel: feed.Channel{
			Title:       cfg.Feed.Title,
			Link:        cfg.Feed.Link,
			Description: cfg.Feed.Description,
		},
		ObjectName: cfg.Output.ObjectName,
		Topic:      topic,
		RunTimeout: cfg.Crawler.RunTimeout,
	}, logger)

	a.modified = modified.New(modified.Deps{
		Catalog: a.catalog,
		Fetcher: deps.Fetcher,
		Blob:    blob,
		Clock:   deps.Clock,
	}, modified.Config{
		FeedURL:    cfg.Source.FeedURL,
		ObjectName: cfg.Output.ModifiedName,
		Headers:    http.Header{"Accept": {"application/rss+xml,application/xml"}},
	}, logger)

	logger.Info("application services initialized",
		zap.String("catalog", cfg.Catalog.Backend),
		zap.String("output", cfg.Output.Backend),
		zap.String("publisher", cfg.PubSub.Backend),
		zap.Int("workers", cfg.Crawler.Workers),
		zap.Bool("headless", deps.HeadlessFetcher != nil),
	)
	return a, nil
}

func (a *App) openCatalog(ctx context.Context) (catalog.Source, error) {
	cfg := a.cfg.Catalog
	switch cfg.Backend {
	case config.CatalogFile, "":
		a.logger.Info("using YAML catalog", zap.String("path", cfg.Path))
		return catalog.NewFileSource(cfg.Path, a.cfg.Source.BaseURL), nil
	case config.CatalogSQLite:
		a.logger.Info("using SQLite catalog", zap.String("path", cfg.Path))
		store, err := sqlite.NewCatalogStore(cfg.Path, a.cfg.Source.BaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.CatalogPostgres:
		a.logger.Info("using Postgres catalog")
		store, err := postgres.NewCatalogStore(ctx, postgres.CatalogStoreConfig{
			DSN:         cfg.DSN,
			NovelsTable: cfg.NovelsTable,
			RolesTable:  cfg.RolesTable,
			BaseURL:     a.cfg.Source.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend: %s", cfg.Backend)
	}
}

func (a *App) openOutput(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.cfg.Output
	switch cfg.Backend {
	case config.OutputLocal, "":
		a.logger.Info("writing feed to local directory", zap.String("dir", cfg.Dir))
		return local.New(local.Config{BaseDir: cfg.Dir})
	case config.OutputMemory:
		a.logger.Info("keeping feed in memory")
		return memory.NewBlobStore(), nil
	case config.OutputGCS:
		a.logger.Info("writing feed to GCS", zap.String("bucket", cfg.Bucket))
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		store, err := gcs.New(client, gcs.Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			CacheControl: cfg.CacheControl,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", cfg.Backend)
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	cfg := a.cfg.PubSub
	switch cfg.Backend {
	case config.PublisherNone, "":
		a.logger.Info("feed notifications disabled")
		return nil, nil
	case config.PublisherMemory:
		return pubmemory.New(), nil
	case config.PublisherPubSub:
		a.logger.Info("publishing feed notifications to Pub/Sub", zap.String("topic", cfg.Topic))
		client, err := pubsubpublisher.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		pub := pubsubpublisher.New(client)
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher backend: %s", cfg.Backend)
	}
}

type catalogWriter interface {
	Replace(ctx context.Context, c *catalog.Catalog) error
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// ErrCatalogReadOnly is returned when importing into the YAML backend.
var ErrCatalogReadOnly = errors.New("configured catalog backend is read-only")

// ImportCatalog replaces the database catalog with the contents of a YAML
// file and returns the number of novels written.
func (a *App) ImportCatalog(ctx context.Context, path string) (int, error) {
	w, ok := a.catalog.(catalogWriter)
	if !ok {
		return 0, ErrCatalogReadOnly
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog file: %w", err)
	}
	defer func() { _ = f.Close() }()
	c, err := catalog.Decode(f)
	if err != nil {
		return 0, err
	}
	if s, ok := a.catalog.(schemaEnsurer); ok {
		if err := s.EnsureSchema(ctx); err != nil {
			return 0, err
		}
	}
	if err := w.Replace(ctx, c); err != nil {
		return 0, fmt.Errorf("import catalog: %w", err)
	}
	a.logger.Info("catalog imported", zap.String("path", path), zap.Int("novels", c.Len()))
	return c.Len(), nil
}

// Close gracefully shuts down all services in the App container, in reverse
// order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = logging.Sync(a.logger)
}

func secondsOf(n int) time.Duration {
	return time.Duration(n) * time.Second
}
