package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	TaskMutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_mutation_count",
			Help: "Total number of task mutations",
		},
		[]string{"operation"}, // operation: create, update, delete
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	StatsCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_cache_count",
			Help: "Stats cache lookups by outcome",
		},
		[]string{"outcome"}, // outcome: hit, miss
	)
)

// RecordHTTPRequestDuration records how long an HTTP request took.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration records how long a database query took.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementTaskMutation counts a successful task mutation.
func IncrementTaskMutation(operation string) {
	TaskMutationCount.WithLabelValues(operation).Inc()
}

// IncrementSlowQuery counts a query that crossed the slow threshold.
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// IncrementStatsCache counts a stats cache hit or miss.
func IncrementStatsCache(outcome string) {
	StatsCacheCount.WithLabelValues(outcome).Inc()
}
