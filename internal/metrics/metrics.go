// Package metrics exposes Prometheus collectors for the pipeline service.
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
	pipelineJobsTotal          *prometheus.CounterVec
	pipelineActiveJobs         prometheus.Gauge
	stageDurationSeconds       *prometheus.HistogramVec
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	captureItemsTotal          *prometheus.CounterVec
	auditItemsTotal            *prometheus.CounterVec
	auditRetriesTotal          prometheus.Counter
	pacerDelaySeconds          *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_jobs_total",
				Help: "Total number of pipeline jobs finished, labeled by final status.",
			},
			[]string{"status"},
		)

		pipelineActiveJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_jobs",
				Help: "Number of jobs currently running.",
			},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Histogram of stage run durations, labeled by stage.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		captureItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_items_total",
				Help: "Total number of screenshot items processed, labeled by status.",
			},
			[]string{"status"},
		)

		auditItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_items_total",
				Help: "Total number of audit items processed, labeled by status.",
			},
			[]string{"status"},
		)

		auditRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_retries_total",
				Help: "Total number of audit attempts beyond the first.",
			},
		)

		pacerDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_pacer_delay_seconds",
				Help:    "Histogram of per-host pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// ObserveJob increments the finished-jobs counter for the given status.
func ObserveJob(status string) {
	pipelineJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveJobs increments the running-jobs gauge.
func IncActiveJobs() {
	pipelineActiveJobs.Inc()
}

// DecActiveJobs decrements the running-jobs gauge.
func DecActiveJobs() {
	pipelineActiveJobs.Dec()
}

// ObserveStageDuration records how long a stage run took.
func ObserveStageDuration(stage string, duration time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveCrawl increments the crawler metrics.
func ObserveCrawl(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveCaptureItem increments the capture item counter.
func ObserveCaptureItem(ok bool) {
	incStatusCounter(captureItemsTotal, ok)
}

// ObserveAuditItem increments the audit item counter.
func ObserveAuditItem(ok bool) {
	incStatusCounter(auditItemsTotal, ok)
}

// ObserveAuditRetry counts one audit attempt beyond the first.
func ObserveAuditRetry() {
	auditRetriesTotal.Inc()
}

// ObservePacerDelay records the duration of a per-host pacing wait.
func ObservePacerDelay(host string, duration time.Duration) {
	pacerDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func incStatusCounter(vec *prometheus.CounterVec, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	vec.WithLabelValues(status).Inc()
}
