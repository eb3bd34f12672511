// Package metrics provides the centralized Prometheus registry reference
// for the extraction service. All metrics are defined in their respective
// packages (client, ratelimit, extract, storage) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - api_requests_total{status} (Counter): Total requests by HTTP status
//   - api_request_duration_seconds (Histogram): Request duration
//   - api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - api_retries_total{error_class} (Counter): Retry attempts by error class
//   - api_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - api_retry_exhausted_total{error_class} (Counter): Pages that exhausted max attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - api_rate_limit_remaining (Gauge): Requests remaining in the upstream budget window
//   - api_rate_limit_blocks_total (Counter): Requests blocked due to critical budget
//   - api_rate_limit_throttles_total (Counter): Requests throttled due to low budget
//
// Ingestion Metrics (pkg/extract):
//   - ingest_pages_total{status} (Counter): Pages processed by outcome (ok, failed)
//   - ingest_records_written_total (Counter): Records durably appended to the sink
//
// Upload Metrics (pkg/storage):
//   - ingest_uploads_total{status} (Counter): Object storage uploads by outcome
//
// Example Prometheus Queries:
//
//   # Page failure rate
//   rate(ingest_pages_total{status="failed"}[5m]) / rate(ingest_pages_total[5m])
//
//   # Budget status
//   api_rate_limit_remaining < 20
//
//   # Retry pressure by class
//   rate(api_retries_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(api_request_duration_seconds_bucket[5m]))
