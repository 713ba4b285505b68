// Package metrics documents the Prometheus metrics of nrdata-dl and exports
// them at the end of a run.
//
// Metrics are defined with promauto in the packages that record them (client,
// cache, ratelimit, batch, output) to keep those packages self-contained.
// A run is a batch job with no scrape endpoint, so WriteTextfile dumps the
// registry in the text exposition format for the node-exporter textfile
// collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TextfileName is the file written into the output directory after a run.
const TextfileName = "nrdata-dl.prom"

// Registry is the default Prometheus registry used by nrdata-dl.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every gathered metric to path in the Prometheus text
// format. The file is written to a temp file and renamed.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - nrdata_requests_total{status} (Counter): Requests by HTTP status, or "network"/"timeout"
//   - nrdata_request_duration_seconds (Histogram): Round-trip duration
//   - nrdata_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, timeout, auth)
//
// Retry Metrics (pkg/client):
//   - nrdata_retries_total{error_class} (Counter): Retry attempts by error class
//   - nrdata_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - nrdata_retry_exhausted_total{error_class} (Counter): Fetches that used up their retry budget
//
// Rate Limit Metrics (pkg/ratelimit):
//   - nrdata_ratelimit_permits_total (Counter): Permits handed out by the gate
//   - nrdata_ratelimit_wait_seconds (Histogram): Time spent waiting for a permit
//   - nrdata_ratelimit_pauses_total (Counter): Retry-After pauses applied to the gate
//
// Cache Metrics (pkg/cache):
//   - nrdata_cache_hits_total (Counter): Payloads found in Redis
//   - nrdata_cache_misses_total (Counter): Lookups that found nothing
//   - nrdata_cache_errors_total{operation} (Counter): Cache operation errors
//   - nrdata_cache_conditional_requests_total (Counter): Revalidation requests sent
//   - nrdata_cache_not_modified_total (Counter): 304 answers to revalidation
//
// Batch Metrics (pkg/batch):
//   - nrdata_outcomes_total{status} (Counter): Outcomes by status (valid, invalid, failed)
//   - nrdata_duplicate_identifiers_total (Counter): Inputs that reused an earlier outcome
//   - nrdata_batch_duration_seconds (Histogram): Time to fetch one customer
//
// Output Metrics (pkg/output):
//   - nrdata_output_files_total{kind} (Counter): Files written (csv, archive, summary)
//   - nrdata_output_errors_total{kind} (Counter): Write failures
//   - nrdata_archived_payloads_total (Counter): Payloads stored in archives
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(nrdata_cache_hits_total) /
//   (sum(nrdata_cache_hits_total) + sum(nrdata_cache_misses_total))
//
//   # Share of identifiers that failed in the last run
//   nrdata_outcomes_total{status="failed"} / ignoring(status) sum(nrdata_outcomes_total)
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(nrdata_request_duration_seconds_bucket[5m]))
