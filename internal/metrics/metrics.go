// Package metrics exposes Prometheus collectors for the collector service.
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
	collectorTasksTotal           *prometheus.CounterVec
	collectorCrawlDurationSeconds *prometheus.HistogramVec
	collectorCoverStageTotal      *prometheus.CounterVec
	collectorDownloadBytesTotal   *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	collectorActiveWorkers        prometheus.Gauge
	collectorRateLimitDelays      *prometheus.HistogramVec
	publishOutcomesTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		collectorTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_tasks_total",
				Help: "Total number of collection tasks finished, labeled by platform and terminal status.",
			},
			[]string{"platform", "status"},
		)

		collectorCrawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_crawl_duration_seconds",
				Help:    "Histogram of platform crawl durations.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"platform"},
		)

		collectorCoverStageTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_cover_stage_total",
				Help: "Which cover fallback stage produced the cover.",
			},
			[]string{"stage"},
		)

		collectorDownloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_download_bytes_total",
				Help: "Total number of video bytes downloaded, labeled by site.",
			},
			[]string{"site"},
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

		collectorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		collectorRateLimitDelays = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_rate_limit_delays_seconds",
				Help:    "Histogram of per-platform rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"platform"},
		)

		publishOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publish_outcomes_total",
				Help: "Publish automation results, labeled by outcome.",
			},
			[]string{"outcome"},
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

// ObserveTask counts a finished task.
func ObserveTask(platform, status string) {
	Init()
	collectorTasksTotal.WithLabelValues(platform, status).Inc()
}

// ObserveCrawl records how long a platform crawl took.
func ObserveCrawl(platform string, duration time.Duration) {
	Init()
	collectorCrawlDurationSeconds.WithLabelValues(platform).Observe(duration.Seconds())
}

// ObserveCoverStage counts the cover stage that won.
func ObserveCoverStage(stage string) {
	Init()
	collectorCoverStageTotal.WithLabelValues(stage).Inc()
}

// ObserveDownload adds downloaded bytes for the URL's host.
func ObserveDownload(rawURL string, bytes int64) {
	Init()
	if bytes > 0 {
		collectorDownloadBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytes))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	collectorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	collectorActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(platform string, duration time.Duration) {
	Init()
	collectorRateLimitDelays.WithLabelValues(platform).Observe(duration.Seconds())
}

// ObservePublish counts a publish outcome.
func ObservePublish(outcome string) {
	Init()
	publishOutcomesTotal.WithLabelValues(outcome).Inc()
}
