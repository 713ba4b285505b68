package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrdata_outcomes_total",
		Help: "Total identifier outcomes by status",
	}, []string{"status"})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrdata_duplicate_identifiers_total",
		Help: "Identifiers that shared the outcome of an earlier occurrence in the same batch",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nrdata_batch_duration_seconds",
		Help:    "Time to fetch one customer batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)
