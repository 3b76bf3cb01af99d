// Package modified republishes the site's own manga-chapters feed with each
// entry split into novel title, chapter name and extended title, enriched
// with catalog metadata. Entries whose novel has no translator are dropped.
package modified

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/feed"
)

const (
	// DefaultFeedURL is the site's chapter-release feed.
	DefaultFeedURL = "https://dragonholic.com/feed/manga-chapters/"
	// DefaultObjectName is where the rewritten feed is stored.
	DefaultObjectName = "dh_modified_feed.xml"
	// FallbackDescription fills the channel when the source has none.
	FallbackDescription = "Modified feed"

	titleSeparator = " - "
	outputTimeout  = 60 * time.Second
)

// Config controls one rewrite.
type Config struct {
	FeedURL    string
	ObjectName string
	Headers    http.Header
}

// Deps are the collaborators of a Builder. Clock may be nil.
type Deps struct {
	Catalog catalog.Source
	Fetcher crawler.Fetcher
	Blob    crawler.BlobStore
	Clock   crawler.Clock
}

// Summary reports the outcome of one rewrite.
type Summary struct {
	Entries   int
	Items     int
	Skipped   int
	OutputURI string
}

// Builder fetches, rewrites and stores the modified feed.
type Builder struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	parser *gofeed.Parser
}

// New constructs a Builder, filling defaults for unset configuration.
func New(deps Deps, cfg Config, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.ObjectName == "" {
		cfg.ObjectName = DefaultObjectName
	}
	return &Builder{deps: deps, cfg: cfg, logger: logger.Named("modified"), parser: gofeed.NewParser()}
}

// Build fetches the source feed, rewrites it and writes the result.
func (b *Builder) Build(ctx context.Context) (Summary, error) {
	cat, err := b.deps.Catalog.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load catalog: %w", err)
	}
	resp, err := b.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: b.cfg.FeedURL, Headers: b.cfg.Headers})
	if err != nil {
		return Summary{}, fmt.Errorf("fetch source feed: %w", err)
	}
	src, err := b.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return Summary{}, fmt.Errorf("parse source feed: %w", err)
	}

	doc, skipped := Rewrite(src, cat, b.now())
	for _, title := range skipped {
		b.logger.Debug("skipping entry without translator", zap.String("novel", title))
	}
	data, err := feed.Marshal(doc)
	if err != nil {
		return Summary{}, err
	}

	outCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outputTimeout)
	defer cancel()
	uri, err := b.deps.Blob.PutObject(outCtx, b.cfg.ObjectName, feed.ContentType, bytes.NewReader(data))
	if err != nil {
		return Summary{}, fmt.Errorf("write modified feed: %w", err)
	}
	summary := Summary{
		Entries:   len(src.Items),
		Items:     len(doc.Items),
		Skipped:   len(skipped),
		OutputURI: uri,
	}
	b.logger.Info("modified feed written",
		zap.Int("entries", summary.Entries),
		zap.Int("items", summary.Items),
		zap.Int("skipped", summary.Skipped),
		zap.String("uri", uri),
	)
	return summary, nil
}

// Rewrite converts the source feed into a document, keeping the source item
// order. It returns the main titles of the entries it dropped.
func Rewrite(src *gofeed.Feed, cat *catalog.Catalog, builtAt time.Time) (feed.Document, []string) {
	ch := feed.Channel{
		Title:       src.Title,
		Link:        src.Link,
		Description: src.Description,
	}
	if ch.Description == "" {
		ch.Description = FallbackDescription
	}

	items := make([]crawler.ChapterRecord, 0, len(src.Items))
	var skipped []string
	for _, entry := range src.Items {
		title, chapter, extended := SplitTitle(entry.Title)
		translator, ok := cat.ResolveTranslator(title)
		if !ok {
			skipped = append(skipped, title)
			continue
		}
		items = append(items, crawler.ChapterRecord{
			NovelTitle:    title,
			ChapterLabel:  chapter,
			ExtendedTitle: extended,
			Permalink:     entry.Link,
			Synopsis:      entry.Description,
			PublishedAt:   published(entry, builtAt),
			GUID:          guid(entry),
			Translator:    translator,
			IsAdult:       cat.IsAdult(title),
			MentionRole:   cat.ResolveMentionRole(translator),
			CoverImage:    cat.ResolveCoverImage(title),
		})
	}
	return feed.Document{Channel: ch, LastBuildDate: builtAt.UTC(), Items: items}, skipped
}

// SplitTitle breaks "Novel - Chapter - Extra" apart. When the third part is
// blank the fourth is used instead. A title without a separator is returned
// whole.
func SplitTitle(full string) (title, chapter, extended string) {
	parts := strings.Split(full, titleSeparator)
	if len(parts) < 2 {
		return full, "", ""
	}
	title = strings.TrimSpace(parts[0])
	chapter = strings.TrimSpace(parts[1])
	if len(parts) > 2 {
		extended = strings.TrimSpace(parts[2])
		if extended == "" && len(parts) > 3 {
			extended = strings.TrimSpace(parts[3])
		}
	}
	return title, chapter, extended
}

func published(entry *gofeed.Item, fallback time.Time) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.UTC()
	default:
		return fallback.UTC()
	}
}

func guid(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	return entry.Link
}

func (b *Builder) now() time.Time {
	if b.deps.Clock == nil {
		return time.Now().UTC()
	}
	return b.deps.Clock.Now().UTC()
}
