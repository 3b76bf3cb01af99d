package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/extract"
	"github.com/JakeFAU/paid-chapter-feed/internal/metrics"
	"github.com/JakeFAU/paid-chapter-feed/internal/normalize"
	"github.com/JakeFAU/paid-chapter-feed/internal/queue/memory"
)

const (
	moonURL  = "https://dragonholic.com/novel/moon-song/"
	adultTag = "<@&1304077473998442506>"
)

var fixedNow = time.Date(2025, 2, 20, 12, 0, 0, 0, time.UTC)

const paidPage = `<html><body>
<div class="description-summary"><div class="summary__content"><p>Moon synopsis.</p></div></div>
<div id="manga-chapters-holder"><ul class="main version-chap no-volumn">
<li class="wp-manga-chapter premium data-chapter-902"><a href="https://dragonholic.com/novel/moon-song/41/">Chapter 41 - Eclipse <i class="fas fa-lock"></i></a>
<span class="coin">15</span><span class="chapter-release-date"><i>1 hour ago</i></span></li>
<li class="wp-manga-chapter premium data-chapter-901"><a href="https://dragonholic.com/novel/moon-song/40/">Chapter 40</a>
<span class="chapter-release-date"><i>3 hours ago</i></span></li>
<li class="wp-manga-chapter free-chap data-chapter-900"><a href="https://dragonholic.com/novel/moon-song/39/">Chapter 39</a>
<span class="chapter-release-date"><i>5 hours ago</i></span></li>
</ul></div></body></html>`

const freeFirstPage = `<html><body><div id="manga-chapters-holder"><ul class="main version-chap">
<li class="wp-manga-chapter free-chap"><a href="https://dragonholic.com/novel/moon-song/12/">Chapter 12</a>
<span class="chapter-release-date"><i>1 hour ago</i></span></li>
<li class="wp-manga-chapter premium"><a href="https://dragonholic.com/novel/moon-song/13/">Chapter 13</a>
<span class="chapter-release-date"><i>1 hour ago</i></span></li>
</ul></div></body></html>`

const emptyHolderPage = `<html><body><div id="manga-chapters-holder"></div></body></html>`

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func newTestWorker(t *testing.T, deps Deps, cfg Config) *Worker {
	t.Helper()
	cat, err := catalog.New("", []catalog.Novel{
		{Title: "Moon Song", Translator: "Aurora", SourceURL: moonURL, CoverImage: "https://cdn.example.com/moon.jpg"},
		{Title: "Night Bloom", Translator: "Vesper", Adult: true},
	}, map[string]string{"Aurora": "<@&111>", "Vesper": "<@&222>"})
	require.NoError(t, err)

	if deps.Extractor == nil {
		deps.Extractor = extract.New(extract.DefaultWindow)
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(cat, adultTag)
	}
	if deps.Clock == nil {
		deps.Clock = &fakeClock{now: fixedNow}
	}
	return New(deps, cfg, zap.NewNop())
}

func TestWorker_Process_ExtractsPaidChapters(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{moonURL: paidPage}}
	w := newTestWorker(t, Deps{Fetcher: fetcher}, Config{Headers: http.Header{"X-Test": {"1"}}})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})

	require.Equal(t, crawler.OutcomeExtracted, res.Outcome)
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 2)
	first := res.Records[0]
	require.Equal(t, "41", first.ChapterLabel)
	require.Equal(t, "Eclipse", first.ExtendedTitle)
	require.Equal(t, "15", first.CoinPrice)
	require.Equal(t, "Aurora", first.Translator)
	require.Equal(t, "<@&111>", first.MentionRole)
	require.Equal(t, "902", first.GUID)
	require.Equal(t, fixedNow.Add(-time.Hour), first.PublishedAt)
	require.Equal(t, "40", res.Records[1].ChapterLabel)
	require.Equal(t, "1", fetcher.lastHeaders.Get("X-Test"))
}

func TestWorker_Process_QuickCheckSkipsFreeFirstChapter(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{moonURL: freeFirstPage}}
	w := newTestWorker(t, Deps{Fetcher: fetcher}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeSkipped, res.Outcome)
	require.Empty(t, res.Records)

	audit := newTestWorker(t, Deps{Fetcher: fetcher, Extractor: extract.New(0)}, Config{SkipQuickCheck: true})
	res = audit.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeExtracted, res.Outcome)
	require.Len(t, res.Records, 1)
	require.Equal(t, "13", res.Records[0].ChapterLabel)
}

func TestWorker_Process_FetchFailureRetriesThenGivesUp(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 10}
	w := newTestWorker(t, Deps{
		Fetcher: fetcher,
		Retry:   crawler.NewRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
	}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeFetchFailed, res.Outcome)
	require.Error(t, res.Err)
	require.Equal(t, 3, fetcher.count())
}

func TestWorker_Process_RetryRecovers(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fails: 2, body: paidPage}
	w := newTestWorker(t, Deps{
		Fetcher: fetcher,
		Retry:   crawler.NewRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
	}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeExtracted, res.Outcome)
	require.Equal(t, 3, fetcher.count())
}

func TestWorker_Process_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: &crawler.StatusError{URL: moonURL, Code: http.StatusNotFound}}
	w := newTestWorker(t, Deps{
		Fetcher: fetcher,
		Retry:   crawler.NewRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
	}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeFetchFailed, res.Outcome)
	require.ErrorIs(t, res.Err, crawler.ErrFetchStatus)
	require.Equal(t, 1, fetcher.calls)
}

func TestWorker_Process_HeadlessPromotionApplied(t *testing.T) {
	t.Parallel()

	plain := &fakeFetcher{pages: map[string]string{moonURL: emptyHolderPage}}
	headless := &fakeFetcher{pages: map[string]string{moonURL: paidPage}}
	w := newTestWorker(t, Deps{
		Fetcher:         plain,
		HeadlessFetcher: headless,
		Detector:        &fakeDetector{promote: true},
	}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeExtracted, res.Outcome)
	require.True(t, res.UsedHeadless)
	require.Len(t, res.Records, 2)
	require.True(t, headless.lastRequest.UseHeadless)
}

func TestWorker_Process_HeadlessFailureKeepsPlainResponse(t *testing.T) {
	t.Parallel()

	plain := &fakeFetcher{pages: map[string]string{moonURL: paidPage}}
	headless := &fakeFetcher{err: errors.New("chrome missing")}
	w := newTestWorker(t, Deps{
		Fetcher:         plain,
		HeadlessFetcher: headless,
		Detector:        &fakeDetector{promote: true},
	}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomeExtracted, res.Outcome)
	require.False(t, res.UsedHeadless)
}

func TestWorker_Process_UnknownNovelHasNoTranslator(t *testing.T) {
	t.Parallel()

	url := "https://dragonholic.com/novel/stray/"
	fetcher := &fakeFetcher{pages: map[string]string{url: paidPage}}
	w := newTestWorker(t, Deps{Fetcher: fetcher}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Stray", SourceURL: url})
	require.Equal(t, crawler.OutcomeExtracted, res.Outcome)
	for _, rec := range res.Records {
		require.Empty(t, rec.Translator)
	}
}

func TestWorker_Process_RecoversPanics(t *testing.T) {
	t.Parallel()

	w := newTestWorker(t, Deps{Fetcher: panicFetcher{}}, Config{})

	res := w.Process(context.Background(), crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL})
	require.Equal(t, crawler.OutcomePanicked, res.Outcome)
	require.Error(t, res.Err)
	require.Empty(t, res.Records)
}

func TestWorker_Run_WritesOneSlotPerTask(t *testing.T) {
	t.Parallel()

	nightURL := "https://dragonholic.com/novel/night-bloom/"
	fetcher := &fakeFetcher{pages: map[string]string{moonURL: paidPage}}
	q := memory.NewQueue(2)
	w := newTestWorker(t, Deps{Queue: q, Fetcher: fetcher}, Config{})

	require.NoError(t, q.Enqueue(context.Background(), crawler.Task{
		Index: 1, Entry: crawler.CatalogEntry{Title: "Moon Song", SourceURL: moonURL},
	}))
	require.NoError(t, q.Enqueue(context.Background(), crawler.Task{
		Index: 0, Entry: crawler.CatalogEntry{Title: "Night Bloom", SourceURL: nightURL},
	}))
	q.Close()

	results := make([]crawler.NovelResult, 2)
	require.NoError(t, w.Run(context.Background(), results))

	require.Equal(t, crawler.OutcomeFetchFailed, results[0].Outcome)
	require.Equal(t, "Night Bloom", results[0].Title)
	require.Equal(t, crawler.OutcomeExtracted, results[1].Outcome)
	require.Len(t, results[1].Records, 2)
}

func TestWorker_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := newTestWorker(t, Deps{Queue: q, Fetcher: &fakeFetcher{}}, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

type fakeFetcher struct {
	mu          sync.Mutex
	pages       map[string]string
	err         error
	calls       int
	lastRequest crawler.FetchRequest
	lastHeaders http.Header
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastRequest = req
	f.lastHeaders = req.Headers
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: req.URL, Code: http.StatusNotFound}
	}
	return crawler.FetchResponse{
		URL:          req.URL,
		StatusCode:   http.StatusOK,
		Body:         []byte(body),
		UsedHeadless: req.UseHeadless,
	}, nil
}

type countingFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
	body     string
}

func (f *countingFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return crawler.FetchResponse{}, errors.New("transient error")
	}
	return crawler.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(f.body),
		URL:        req.URL,
	}, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	panic("boom")
}

type fakeDetector struct {
	promote bool
}

func (d *fakeDetector) ShouldPromote(crawler.FetchResponse) bool {
	return d.promote
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
