package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts every classified query by its outcome kind
	// (version, show_tables, describe_users, pk_lookup, full_scan,
	// token_verify, noop, rejected), independent of whether it returned any
	// rows.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queries_total",
			Help: "Total number of queries classified, by kind",
		},
		[]string{"kind"},
	)

	// QueryDuration tracks end-to-end execution latency by kind.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Query execution duration in seconds, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ScanOperationsTotal counts SELECT * full-table scans, which bypass
	// the primary-key lookup path and so deserve separate visibility.
	ScanOperationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_operations_total",
			Help: "Total number of full-table SCAN operations performed",
		},
	)

	// RateLimitRejectionsTotal counts requests denied by the per-IP
	// fixed-window limiter.
	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// ConnectionsActive tracks concurrently open client connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of currently open client connections",
		},
	)

	// RedisErrorsTotal counts backing-store failures observed while
	// serving a query, regardless of which component hit them.
	RedisErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of backing-store errors observed",
		},
	)
)

// ObserveQuery records one query's outcome kind and duration.
func ObserveQuery(kind string, d time.Duration) {
	QueriesTotal.WithLabelValues(kind).Inc()
	QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}
