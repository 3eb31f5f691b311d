// Package metrics provides Prometheus metrics for the resource data layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "refine"
	subsystem = "data"
)

var (
	// FetchLatency tracks provider fetch latency by resource and provider.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_latency_seconds",
			Help:      "Provider fetch latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"resource", "provider"},
	)

	// FetchTotal counts provider fetches by resource, provider and outcome.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_total",
			Help:      "Total number of provider fetches by outcome (success or error)",
		},
		[]string{"resource", "provider", "outcome"},
	)

	// CacheHits counts query-cache reads served from a settled entry.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of query cache hits",
		},
	)

	// CacheMisses counts query-cache reads that triggered a fetch.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of query cache misses",
		},
	)

	// CacheEntries tracks the number of query-cache entries with observers.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_entries",
			Help:      "Number of query cache entries with active observers",
		},
	)

	// LiveEvents counts received live change events by channel.
	LiveEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "live_events_total",
			Help:      "Total number of live change events applied",
		},
		[]string{"channel"},
	)

	// NotificationsOpened counts dispatched notifications by kind.
	NotificationsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_opened_total",
			Help:      "Total number of notifications dispatched by kind",
		},
		[]string{"kind"},
	)

	// AuthEscalations counts errors escalated through the auth channel.
	AuthEscalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_escalations_total",
			Help:      "Total number of errors escalated as authentication failures",
		},
	)

	// StalledFetches counts fetches that ran past the stall interval at
	// least once.
	StalledFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stalled_fetches_total",
			Help:      "Total number of fetches that ran past the stall interval",
		},
		[]string{"resource"},
	)

	// ActiveQueries tracks currently mounted single-record queries.
	ActiveQueries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_queries",
			Help:      "Number of mounted single-record queries",
		},
	)
)
