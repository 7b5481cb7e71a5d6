// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal   *prometheus.CounterVec
	retryDelaySeconds       *prometheus.HistogramVec
	throttleDelaySeconds    prometheus.Histogram
	tasksTotal              *prometheus.CounterVec
	rowsWrittenTotal        *prometheus.CounterVec
	writerCommitsTotal      prometheus.Counter
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec
	activeWorkers           prometheus.Gauge
	pairsDone               prometheus.Gauge
	pairsTotal              prometheus.Gauge
	queueDepth              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightnet_upstream_requests_total",
				Help: "Upstream API calls, labeled by source, method and outcome.",
			},
			[]string{"source", "method", "outcome"},
		)

		retryDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightnet_retry_delay_seconds",
				Help:    "Backoff sleeps between retries, labeled by failure class.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"reason"},
		)

		throttleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flightnet_throttle_delay_seconds",
				Help:    "Waits imposed by the shared outbound-call throttle.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightnet_tasks_total",
				Help: "Pair-window tasks processed, labeled by result.",
			},
			[]string{"result"},
		)

		rowsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightnet_rows_written_total",
				Help: "Rows persisted by the writer, labeled by table.",
			},
			[]string{"table"},
		)

		writerCommitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flightnet_writer_commits_total",
				Help: "Write transactions committed by the writer.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightnet_http_requests_total",
				Help: "Ops-server HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightnet_http_request_duration_seconds",
				Help:    "Ops-server request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flightnet_active_workers",
				Help: "Workers currently processing tasks.",
			},
		)

		pairsDone = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flightnet_pairs_done",
				Help: "Route pairs completed in the current run.",
			},
		)

		pairsTotal = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flightnet_pairs_total",
				Help: "Route pairs planned for the current run.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flightnet_write_queue_depth",
				Help: "Batches buffered in the write queue.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstreamRequest counts one upstream call with its outcome.
func ObserveUpstreamRequest(source, method, outcome string) {
	upstreamRequestsTotal.WithLabelValues(source, method, outcome).Inc()
}

// ObserveRetryDelay records a backoff sleep for the given failure class.
func ObserveRetryDelay(reason string, d time.Duration) {
	retryDelaySeconds.WithLabelValues(reason).Observe(d.Seconds())
}

// ObserveThrottleDelay records a wait imposed by the shared throttle.
func ObserveThrottleDelay(d time.Duration) {
	throttleDelaySeconds.Observe(d.Seconds())
}

// ObserveTask counts one finished pair-window task.
func ObserveTask(result string) {
	tasksTotal.WithLabelValues(result).Inc()
}

// AddRowsWritten counts rows persisted to the given table.
func AddRowsWritten(table string, n int) {
	if n > 0 {
		rowsWrittenTotal.WithLabelValues(table).Add(float64(n))
	}
}

// IncWriterCommits counts one committed write transaction.
func IncWriterCommits() {
	writerCommitsTotal.Inc()
}

// ObserveHTTPRequest records an ops-server request.
func ObserveHTTPRequest(method, route, code string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// SetPairProgress mirrors the run counters into gauges.
func SetPairProgress(done, total int64) {
	pairsDone.Set(float64(done))
	pairsTotal.Set(float64(total))
}

// SetQueueDepth records the number of buffered write batches.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
