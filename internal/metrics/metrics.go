// Package metrics exposes Prometheus collectors for the newswatch service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchArticlesTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	articlesInsertedTotal      prometheus.Counter
	articlesDuplicateTotal     prometheus.Counter
	analysisTotal              *prometheus.CounterVec
	crawlRunsTotal             *prometheus.CounterVec
	crawlRunDurationSeconds    prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeFetchWorkers         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		fetchArticlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_fetch_articles_total",
				Help: "Total articles returned by fetchers, labeled by provider.",
			},
			[]string{"provider"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newswatch_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		)

		articlesInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_articles_inserted_total",
				Help: "Total articles newly persisted to the store.",
			},
		)

		articlesDuplicateTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_articles_duplicate_total",
				Help: "Total articles skipped because the URL was already stored.",
			},
		)

		analysisTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_analysis_total",
				Help: "Total article classifications, labeled by status.",
			},
			[]string{"status"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_crawl_runs_total",
				Help: "Total crawl runs, labeled by trigger and status.",
			},
			[]string{"trigger", "status"},
		)

		crawlRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newswatch_crawl_run_duration_seconds",
				Help:    "Histogram of full crawl run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
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

		activeFetchWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newswatch_active_fetch_workers",
				Help: "Number of workers currently executing a fetch pair.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt and its yield.
func ObserveFetch(provider, outcome string, articles int, duration time.Duration) {
	fetchAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	if articles > 0 {
		fetchArticlesTotal.WithLabelValues(provider).Add(float64(articles))
	}
	fetchDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveInsert records the result of a deduplicating insert.
func ObserveInsert(inserted bool) {
	if inserted {
		articlesInsertedTotal.Inc()
	} else {
		articlesDuplicateTotal.Inc()
	}
}

// ObserveAnalysis increments the classification counter for the given status.
func ObserveAnalysis(status string) {
	analysisTotal.WithLabelValues(status).Inc()
}

// ObserveCrawlRun records a completed crawl run.
func ObserveCrawlRun(trigger, status string, duration time.Duration) {
	crawlRunsTotal.WithLabelValues(trigger, status).Inc()
	crawlRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeFetchWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeFetchWorkers.Dec()
}
