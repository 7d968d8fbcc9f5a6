// Package metrics exposes Prometheus collectors for the archive service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webvault_archives_total",
			Help: "Total number of archive creations, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webvault_pages_total",
			Help: "Total number of pages crawled, labeled by status.",
		},
		[]string{"status"},
	)

	assetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webvault_assets_total",
			Help: "Total number of asset downloads, labeled by category and status.",
		},
		[]string{"category", "status"},
	)

	storedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webvault_stored_bytes_total",
			Help: "Total bytes written into archive directories.",
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
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveArchive counts one archive creation outcome.
func ObserveArchive(outcome string) {
	archivesTotal.WithLabelValues(outcome).Inc()
}

// ObservePage counts one page crawl and the bytes it stored.
func ObservePage(status string, bytesStored int) {
	pagesTotal.WithLabelValues(status).Inc()
	if bytesStored > 0 {
		storedBytesTotal.Add(float64(bytesStored))
	}
}

// ObserveAsset counts one asset download and the bytes it stored.
func ObserveAsset(category, status string, bytesStored int64) {
	assetsTotal.WithLabelValues(category, status).Inc()
	if bytesStored > 0 {
		storedBytesTotal.Add(float64(bytesStored))
	}
}

// ObserveHTTPRequest records inbound request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
