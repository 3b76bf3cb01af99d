// Package metrics exposes Prometheus collectors for the feed builder.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	novelsTotal                *prometheus.CounterVec
	chaptersExtractedTotal     prometheus.Counter
	recordsDroppedTotal        *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	feedItems                  prometheus.Gauge
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	lastSuccessTimestamp       prometheus.Gauge
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		novelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chapterfeed_novels_total",
				Help: "Novels processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		chaptersExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chapterfeed_chapters_extracted_total",
				Help: "Paid chapters extracted inside the staleness window.",
			},
		)

		recordsDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chapterfeed_records_dropped_total",
				Help: "Chapter records excluded from the feed, labeled by reason.",
			},
			[]string{"reason"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chapterfeed_fetches_total",
				Help: "Page fetches, labeled by site, fetcher and status.",
			},
			[]string{"site", "fetcher", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chapterfeed_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"fetcher"},
		)

		feedItems = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chapterfeed_feed_items",
				Help: "Items in the most recently built feed.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chapterfeed_runs_total",
				Help: "Feed builds, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chapterfeed_run_duration_seconds",
				Help:    "Histogram of whole feed build durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		lastSuccessTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chapterfeed_last_success_timestamp_seconds",
				Help: "Unix time of the last successful feed build.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chapterfeed_active_workers",
				Help: "Number of workers currently processing a novel.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chapterfeed_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveNovel counts one finished novel pipeline.
func ObserveNovel(outcome string) {
	novelsTotal.WithLabelValues(outcome).Inc()
}

// ObserveChapters counts extracted chapters.
func ObserveChapters(n int) {
	if n > 0 {
		chaptersExtractedTotal.Add(float64(n))
	}
}

// ObserveDropped counts records excluded from the feed.
func ObserveDropped(reason string, n int) {
	if n > 0 {
		recordsDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveFetch records one page fetch attempt.
func ObserveFetch(site, fetcher string, code int, duration time.Duration) {
	status := "error"
	if code > 0 {
		status = strconv.Itoa(code)
	}
	fetchesTotal.WithLabelValues(SanitizeSite(site), fetcher, status).Inc()
	fetchDurationSeconds.WithLabelValues(fetcher).Observe(duration.Seconds())
}

// ObserveRun records a finished feed build.
func ObserveRun(status string, items int, duration time.Duration, finishedAt time.Time) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
	if status == "succeeded" {
		feedItems.Set(float64(items))
		lastSuccessTimestamp.Set(float64(finishedAt.Unix()))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
