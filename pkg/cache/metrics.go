package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks payloads served from Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nrdata_cache_hits_total",
			Help: "Total number of payload cache hits",
		},
	)

	// CacheMisses tracks lookups that found nothing.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nrdata_cache_misses_total",
			Help: "Total number of payload cache misses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrdata_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// ConditionalRequestsSent tracks revalidation requests.
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nrdata_cache_conditional_requests_total",
			Help: "Total number of conditional requests sent for stale entries",
		},
	)

	// NotModifiedResponses tracks 304 answers to revalidation requests.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nrdata_cache_not_modified_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)
)
