// Package metrics holds the prometheus collectors of the query engine and
// the HTTP layer. Collectors register with the default registry, which
// /metrics serves.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dataviewer"

// Outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
	OutcomeFault    = "integrity_fault"
)

var (
	// queryDuration measures engine operations.
	// Labels: operation (years, entities, data, ...), outcome
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Query engine operation latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation", "outcome"})

	// degradedQueries counts requests answered with an empty result
	// because the input could not be used.
	// Labels: operation, reason (malformed_id, malformed_filter, not_found)
	degradedQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "degraded_total",
		Help:      "Queries answered with an empty result because of unusable input",
	}, []string{"operation", "reason"})

	// integrityFaults counts data integrity faults seen by the engine.
	// Labels: kind
	integrityFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "warehouse",
		Name:      "integrity_faults_total",
		Help:      "Data integrity faults found in the warehouse",
	}, []string{"kind"})

	// pointsReturned observes the number of rows a data query returns.
	pointsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "points_returned",
		Help:      "Rows returned by point data queries",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
)

func RecordQuery(operation string, outcome string, start time.Time) {
	queryDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func RecordDegraded(operation string, reason string) {
	degradedQueries.WithLabelValues(operation, reason).Inc()
}

func RecordIntegrityFault(kind string) {
	integrityFaults.WithLabelValues(kind).Inc()
}

func RecordPoints(n int) {
	pointsReturned.Observe(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
