// Package metrics exposes Prometheus collectors for the harvester service.
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
	harvesterPagesTotal         *prometheus.CounterVec
	harvesterBytesTotal         *prometheus.CounterVec
	harvesterRecordsTotal       *prometheus.CounterVec
	harvesterRelationshipsTotal *prometheus.CounterVec
	harvesterDropsTotal         *prometheus.CounterVec
	harvesterRetriesTotal       prometheus.Counter
	harvesterActiveWorkers      prometheus.Gauge
	harvesterQueueDepth         prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_total",
				Help: "Total number of pages processed, labeled by entity and status.",
			},
			[]string{"entity", "status"},
		)

		harvesterBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		harvesterRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of records forwarded to the sink, labeled by entity.",
			},
			[]string{"entity"},
		)

		harvesterRelationshipsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_relationships_total",
				Help: "Total number of relationships forwarded, labeled by predicate.",
			},
			[]string{"predicate"},
		)

		harvesterDropsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_drops_total",
				Help: "Total number of dropped targets and records, labeled by reason.",
			},
			[]string{"reason"},
		)

		harvesterRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_retries_total",
				Help: "Total number of re-enqueued fetch attempts.",
			},
		)

		harvesterActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing a target.",
			},
		)

		harvesterQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_queue_depth",
				Help: "Targets currently waiting in the frontier queue.",
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

// ObservePage increments the page metrics.
func ObservePage(entity string, site string, status int, bytesFetched int) {
	harvesterPagesTotal.WithLabelValues(entity, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		harvesterBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveRecord increments the forwarded-record counter.
func ObserveRecord(entity string) {
	harvesterRecordsTotal.WithLabelValues(entity).Inc()
}

// ObserveRelationship increments the forwarded-relationship counter.
func ObserveRelationship(predicate string) {
	harvesterRelationshipsTotal.WithLabelValues(predicate).Inc()
}

// ObserveDrop increments the drop counter for the given reason.
func ObserveDrop(reason string) {
	harvesterDropsTotal.WithLabelValues(reason).Inc()
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	harvesterRetriesTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	harvesterActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	harvesterActiveWorkers.Dec()
}

// SetQueueDepth records the current frontier depth.
func SetQueueDepth(n int) {
	harvesterQueueDepth.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
