// Package headless renders novel pages whose chapter list is loaded by script.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

const (
	defaultNavTimeout = 45 * time.Second
	defaultSettle     = 10 * time.Second
	pollInterval      = 250 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs; zero means unlimited.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleTimeout bounds the wait for WaitSelector to match after load.
	SettleTimeout time.Duration
	// WaitSelector is polled until it matches at least one node.
	WaitSelector string
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
// One browser process is shared; every Fetch opens its own tab.
type Fetcher struct {
	cfg       Config
	slots     chan struct{}
	allocator context.Context
	stopAlloc context.CancelFunc

	mu          sync.Mutex
	browser     context.Context
	stopBrowser context.CancelFunc
	closed      bool
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettle
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	f.allocator, f.stopAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close stops the browser process. Later fetches fail.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.stopBrowser != nil {
		f.stopBrowser()
		f.browser, f.stopBrowser = nil, nil
	}
	f.stopAlloc()
}

// startBrowser launches Chrome on first use and returns the browser context
// tabs are opened from. A browser that has exited is relaunched.
func (f *Fetcher) startBrowser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("headless fetcher closed")
	}
	if f.browser != nil && f.browser.Err() == nil {
		return f.browser, nil
	}
	if f.stopBrowser != nil {
		f.stopBrowser()
	}
	browser, stop := chromedp.NewContext(f.allocator)
	if err := chromedp.Run(browser); err != nil {
		stop()
		f.browser, f.stopBrowser = nil, nil
		return nil, fmt.Errorf("start browser: %w", err)
	}
	f.browser, f.stopBrowser = browser, stop
	return browser, nil
}

// Fetch loads request.URL in a fresh tab and returns the rendered DOM once the
// chapter list has appeared or the settle timeout has passed.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	release, err := f.acquire(ctx)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	defer release()

	browser, err := f.startBrowser()
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	tab, closeTab := chromedp.NewContext(browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tab, doc.listen)

	var html, location string
	start := time.Now()
	err = chromedp.Run(tab,
		f.prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		f.settle(),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, ctx.Err())
		}
		return crawler.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	status, finalURL, headers := doc.result(location, request.URL)
	resp := crawler.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}
	if !resp.OK() {
		return resp, &crawler.StatusError{URL: request.URL, Code: status}
	}
	return resp, nil
}

func (f *Fetcher) acquire(ctx context.Context) (func(), error) {
	if f.slots == nil {
		return func() {}, nil
	}
	select {
	case f.slots <- struct{}{}:
		return func() { <-f.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

// prepare enables network events and applies the user agent and extra headers.
func (f *Fetcher) prepare(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := networkHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// settle polls until WaitSelector matches. Running out of time is not an
// error: a novel may simply have no chapters yet.
func (f *Fetcher) settle() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if f.cfg.WaitSelector == "" {
			return nil
		}
		expr := fmt.Sprintf("document.querySelectorAll(%q).length", f.cfg.WaitSelector)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		deadline := time.After(f.cfg.SettleTimeout)
		for {
			var n int
			if err := chromedp.Evaluate(expr, &n).Do(ctx); err != nil {
				return fmt.Errorf("poll %s: %w", f.cfg.WaitSelector, err)
			}
			if n > 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				return nil
			case <-ticker.C:
			}
		}
	})
}

// documentResponse records what the browser saw for the main document.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	url     string
	headers http.Header
}

func (d *documentResponse) listen(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := make(http.Header, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		if s, ok := v.(string); ok {
			// Chrome folds repeated headers into one newline-separated value.
			for _, part := range strings.Split(s, "\n") {
				headers.Add(k, part)
			}
			continue
		}
		headers.Add(k, fmt.Sprint(v))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(e.Response.Status)
	d.url = e.Response.URL
	d.headers = headers
}

// result falls back to the tab location, then the requested URL, when no
// document event was seen. A missing status is reported as 200.
func (d *documentResponse) result(location, requested string) (int, string, http.Header) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, url, headers := d.status, d.url, d.headers
	if url == "" {
		url = location
	}
	if url == "" {
		url = requested
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, url, headers
}

func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for k, values := range h {
		if len(values) == 0 {
			continue
		}
		out[k] = strings.Join(values, ", ")
	}
	return out
}
