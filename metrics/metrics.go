package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testd"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed test runs",
	}, []string{
		"result",
	})

	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the most recent test run",
	})

	runFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_failures",
		Help:      "Failure count of the most recent test run",
	})

	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_emitted_total",
		Help:      "Count of streamed events by type",
	}, []string{
		"type",
	})

	streamWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stream_write_errors_total",
		Help:      "Count of failed writes to run event streams",
	})

	rejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "rejected_requests_total",
		Help:      "Count of run requests rejected without a run",
	}, []string{
		"reason",
	})

	cleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cleanup_failures_total",
		Help:      "Count of post-run storage cleanup failures",
	})
)

// RecordRun records a completed run's outcome.
func RecordRun(result string, failures int, duration time.Duration) {
	runsTotal.WithLabelValues(result).Inc()
	runFailures.Set(float64(failures))
	runDuration.Set(duration.Seconds())
}

// RecordEvent counts one streamed event.
func RecordEvent(eventType string) {
	eventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordStreamWriteError counts one failed stream write.
func RecordStreamWriteError() {
	streamWriteErrors.Inc()
}

// RecordRejectedRequest counts a run request turned away before a run was
// attempted. Reason is "busy" or "shutting_down".
func RecordRejectedRequest(reason string) {
	rejectedRequests.WithLabelValues(reason).Inc()
}

// RecordCleanupFailure counts one failed post-run storage cleanup.
func RecordCleanupFailure() {
	cleanupFailures.Inc()
}
