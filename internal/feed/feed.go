package feed

import (
	"time"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

// Channel defaults for the aggregated paid-chapter feed.
const (
	DefaultTitle       = "Dragonholic Paid Chapters"
	DefaultLink        = "https://dragonholic.com"
	DefaultDescription = "Aggregated RSS feed for paid chapters across mapped novels."
	DefaultObjectName  = "dh_paid_feed.xml"
	ContentType        = "application/rss+xml; charset=utf-8"
)

// Channel carries the fixed header fields of the feed.
type Channel struct {
	Title       string `mapstructure:"title"`
	Link        string `mapstructure:"link"`
	Description string `mapstructure:"description"`
}

// DefaultChannel returns the channel header used when none is configured.
func DefaultChannel() Channel {
	return Channel{
		Title:       DefaultTitle,
		Link:        DefaultLink,
		Description: DefaultDescription,
	}
}

// Document is one fully rebuilt feed.
type Document struct {
	Channel       Channel
	LastBuildDate time.Time
	Items         []crawler.ChapterRecord
}

// Build copies and sorts the records into a fresh document.
func Build(ch Channel, records []crawler.ChapterRecord, builtAt time.Time) Document {
	items := make([]crawler.ChapterRecord, len(records))
	copy(items, records)
	Sort(items)
	return Document{
		Channel:       ch,
		LastBuildDate: builtAt.UTC(),
		Items:         items,
	}
}
