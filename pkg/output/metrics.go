package output

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrdata_output_files_total",
		Help: "Output files written by kind",
	}, []string{"kind"}) // "csv", "archive", "summary"

	outputErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrdata_output_errors_total",
		Help: "Output write failures by kind",
	}, []string{"kind"})

	archivedPayloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrdata_archived_payloads_total",
		Help: "Payload files stored in customer archives",
	})
)
