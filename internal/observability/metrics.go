// Package observability exposes the service's Prometheus instruments behind
// small recording helpers so callers never touch collectors directly.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "garminsync"

var (
	syncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Completed sync runs partitioned by outcome.",
	}, []string{"outcome"})

	syncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_inserted_total",
		Help:      "Rows newly inserted by sync runs, by record kind.",
	}, []string{"kind"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of sync runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync run.",
	})

	rateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Sliding-window limiter decisions partitioned by result.",
	}, []string{"result"})

	upstreamRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Upstream calls retried after a transient failure.",
	})

	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	normalizationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "normalize",
		Name:      "failures_total",
		Help:      "Payloads skipped because they could not be normalized.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		syncTotal,
		syncRecords,
		syncDuration,
		lastSyncGauge,
		rateLimitDecisions,
		upstreamRetries,
		breakerState,
		normalizationFailures,
	)
}

// RecordSync records the outcome of one sync run. Inserted counts are only
// added for successful runs.
func RecordSync(err error, elapsed time.Duration, activities, metrics int) {
	syncDuration.Observe(elapsed.Seconds())
	if err != nil {
		syncTotal.WithLabelValues("error").Inc()
		return
	}
	syncTotal.WithLabelValues("success").Inc()
	syncRecords.WithLabelValues("activity").Add(float64(activities))
	syncRecords.WithLabelValues("health_metric").Add(float64(metrics))
	lastSyncGauge.Set(float64(time.Now().Unix()))
}

// RecordRateLimit records a single limiter decision.
func RecordRateLimit(allowed bool) {
	if allowed {
		rateLimitDecisions.WithLabelValues("allowed").Inc()
		return
	}
	rateLimitDecisions.WithLabelValues("rejected").Inc()
}

// RecordRetry counts one retried upstream call.
func RecordRetry() {
	upstreamRetries.Inc()
}

// RecordBreakerState publishes a circuit breaker transition. Unknown state
// names are reported as open.
func RecordBreakerState(name, state string) {
	value := 2.0
	switch state {
	case "closed":
		value = 0
	case "half-open":
		value = 1
	}
	breakerState.WithLabelValues(name).Set(value)
}

// RecordNormalizationFailure counts a skipped payload of the given kind.
func RecordNormalizationFailure(kind string) {
	normalizationFailures.WithLabelValues(kind).Inc()
}
