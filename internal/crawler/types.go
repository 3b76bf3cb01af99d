// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"net/http"
	"time"
)

// ErrFetchStatus marks a fetch that completed with a non-success HTTP status.
var ErrFetchStatus = errors.New("unexpected http status")

// ErrRunNotFound is returned by run stores when no run matches a lookup.
var ErrRunNotFound = errors.New("run not found")

// CatalogEntry is one tracked novel as supplied by the catalog provider.
type CatalogEntry struct {
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
}

// RawChapter is a single chapter node lifted from a source page before normalization.
type RawChapter struct {
	Restricted   bool
	Premium      bool
	VolumeLabel  string
	Label        string
	Href         string
	CoinLabel    string
	ReleaseLabel string
	ChapterID    string
}

// ChapterRecord is the canonical, feed-ready representation of one paid chapter.
type ChapterRecord struct {
	NovelTitle    string    `json:"novel_title"`
	VolumeLabel   string    `json:"volume_label,omitempty"`
	ChapterLabel  string    `json:"chapter_label"`
	ChapterKey    []float64 `json:"chapter_key"`
	ExtendedTitle string    `json:"extended_title,omitempty"`
	Permalink     string    `json:"permalink"`
	Synopsis      string    `json:"synopsis"`
	PublishedAt   time.Time `json:"published_at"`
	GUID          string    `json:"guid"`
	CoinPrice     string    `json:"coin_price,omitempty"`
	Translator    string    `json:"translator"`
	IsAdult       bool      `json:"is_adult"`
	MentionRole   string    `json:"mention_role"`
	CoverImage    string    `json:"cover_image"`
}

// Task is one unit of scheduler work: a catalog entry plus its result slot index.
type Task struct {
	Index int
	Entry CatalogEntry
}

// NovelOutcome classifies how a single novel pipeline ended.
type NovelOutcome string

// Outcome values reported per novel.
const (
	OutcomeExtracted   NovelOutcome = "extracted"
	OutcomeSkipped     NovelOutcome = "skipped"
	OutcomeFetchFailed NovelOutcome = "fetch_failed"
	OutcomeEmpty       NovelOutcome = "empty"
	OutcomePanicked    NovelOutcome = "panicked"
)

// NovelResult is written by exactly one worker into the slot for its task.
type NovelResult struct {
	Title        string
	Outcome      NovelOutcome
	Records      []ChapterRecord
	UsedHeadless bool
	Err          error
}

// RunStatus represents the lifecycle state of a feed build.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary describes one feed build for logs, the API and the notification.
type RunSummary struct {
	ID               string     `json:"id"`
	Status           RunStatus  `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ErrorText        string     `json:"error_text,omitempty"`
	NovelsTotal      int        `json:"novels_total"`
	NovelsExtracted  int        `json:"novels_extracted"`
	NovelsSkipped    int        `json:"novels_skipped"`
	NovelsFailed     int        `json:"novels_failed"`
	RecordsExtracted int        `json:"records_extracted"`
	RecordsDropped   int        `json:"records_dropped"`
	Items            int        `json:"items"`
	OutputURI        string     `json:"output_uri,omitempty"`
	Digest           string     `json:"digest,omitempty"`
}

// FeedBuiltEvent is published after a feed document has been stored.
type FeedBuiltEvent struct {
	RunID   string    `json:"run_id"`
	URI     string    `json:"uri"`
	Items   int       `json:"items"`
	SHA256  string    `json:"sha256"`
	BuiltAt time.Time `json:"built_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse contains the payload and metadata from a fetch.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
