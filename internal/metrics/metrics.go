// Package metrics exposes Prometheus collectors for the listing crawler.
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

// Outcome labels shared by the page, record and category counters.
const (
	OutcomeOK            = "ok"
	OutcomeEmpty         = "empty"
	OutcomeDuplicate     = "duplicate"
	OutcomeFetchFailed   = "fetch_failed"
	OutcomeExtractFailed = "extract_failed"
	OutcomeFailed        = "failed"
	OutcomeStored        = "stored"
	OutcomeRejected      = "rejected"
)

var (
	pagesTotal              *prometheus.CounterVec
	recordsTotal            *prometheus.CounterVec
	adsSkippedTotal         prometheus.Counter
	categoriesTotal         *prometheus.CounterVec
	sourceStopsTotal        *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	publishFailuresTotal    prometheus.Counter
	headlessPromotionsTotal *prometheus.CounterVec
	activeTasks             prometheus.Gauge
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call repeatedly;
// every Observe helper calls it first.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_pages_total",
				Help: "Listing pages processed, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_records_total",
				Help: "Records handed to storage, labeled by outcome and rejection reason.",
			},
			[]string{"outcome", "reason"},
		)

		adsSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "listing_crawler_ads_skipped_total",
				Help: "Listing entries dropped because they carried no usable detail.",
			},
		)

		categoriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_categories_total",
				Help: "Category crawls finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sourceStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_source_stops_total",
				Help: "Paginated sources finished, labeled by stop reason.",
			},
			[]string{"reason"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listing_crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		publishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "listing_crawler_publish_failures_total",
				Help: "Stored-listing notifications that could not be published.",
			},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_headless_promotions_total",
				Help: "Pages re-fetched through headless Chrome, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listing_crawler_active_tasks",
				Help: "Number of category tasks currently running.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listing_crawler_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_crawler_http_requests_total",
				Help: "Requests served by the health/metrics endpoint, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listing_crawler_http_request_duration_seconds",
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
	Init()
	return promhttp.Handler()
}

// ObservePage counts one processed page.
func ObservePage(mode, outcome string) {
	Init()
	pagesTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveFetchDuration records how long a page fetch took.
func ObserveFetchDuration(mode string, d time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveRecord counts one persistence outcome. reason is empty for stored records.
func ObserveRecord(outcome, reason string) {
	Init()
	recordsTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveAdsSkipped adds n skipped listing entries.
func ObserveAdsSkipped(n int) {
	Init()
	adsSkippedTotal.Add(float64(n))
}

// ObserveCategory counts one finished category crawl.
func ObserveCategory(outcome string) {
	Init()
	categoriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSourceStop counts one finished source by stop reason.
func ObserveSourceStop(reason string) {
	Init()
	sourceStopsTotal.WithLabelValues(reason).Inc()
}

// ObservePublishFailure counts one failed notification.
func ObservePublishFailure() {
	Init()
	publishFailuresTotal.Inc()
}

// ObserveHeadlessPromotion counts one headless re-fetch.
func ObserveHeadlessPromotion(outcome string) {
	Init()
	headlessPromotionsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveTasks increments the active tasks gauge.
func IncActiveTasks() {
	Init()
	activeTasks.Inc()
}

// DecActiveTasks decrements the active tasks gauge.
func DecActiveTasks() {
	Init()
	activeTasks.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
