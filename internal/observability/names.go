// Package observability provides structured logging, OpenTelemetry metrics (Prometheus
// exporter) and optional tracing for the precedent services.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameIngestRuns          = "precedent_ingest_runs_total"
	MetricNameIngestRunDuration   = "precedent_ingest_run_duration_seconds"
	MetricNameIngestRowsStored    = "precedent_ingest_rows_stored_total"
	MetricNameIngestDuplicates    = "precedent_ingest_duplicates_dropped_total"
	MetricNameIngestInvalidRows   = "precedent_ingest_invalid_rows_total"
	MetricNameIngestFlushDuration = "precedent_ingest_flush_duration_seconds"

	MetricNameEmbeddingItemsEnqueued  = "precedent_embedding_items_enqueued_total"
	MetricNameEmbeddingProviderErrors = "precedent_embedding_provider_errors_total"
	MetricNameEmbeddingOutcomes       = "precedent_embedding_outcomes_total"
	MetricNameEmbeddingWorkerErrors   = "precedent_embedding_worker_errors_total"
	MetricNameEmbeddingDuration       = "precedent_embedding_duration_seconds"
	MetricNameEmbeddingQueueDepth     = "precedent_embedding_queue_depth"

	MetricNameTypicalExampleBuilds = "precedent_typical_example_builds_total"
	MetricNameClusterCount         = "precedent_typical_example_clusters"

	MetricNameCacheHits   = "precedent_cache_hits_total"
	MetricNameCacheMisses = "precedent_cache_misses_total"

	MetricNameHTTPRequests        = "precedent_http_requests_total"
	MetricNameHTTPRequestDuration = "precedent_http_request_duration_seconds"
	MetricNameRequestBodyTooLarge = "precedent_http_request_body_too_large_total"
)

// Attribute keys.
const (
	AttrOutcome = "outcome"
	AttrReason  = "reason"
	AttrStatus  = "status"
	AttrSource  = "source"
)

// AllowedIngestOutcome for precedent_ingest_runs_total.
var AllowedIngestOutcome = map[string]bool{
	"completed":      true,
	"header_error":   true,
	"invalid_rows":   true,
	"timeout":        true,
	"canceled":       true,
	"limit_exceeded": true,
	"storage_error":  true,
}

// AllowedFlushStatus for precedent_ingest_flush_duration_seconds.
var AllowedFlushStatus = map[string]bool{
	"success": true,
	"error":   true,
}

// AllowedEmbeddingProviderReason for precedent_embedding_provider_errors_total.
var AllowedEmbeddingProviderReason = map[string]bool{
	"empty_input":        true,
	"dimension_mismatch": true,
	"api_error":          true,
	"rate_limited":       true,
}

// AllowedEmbeddingWorkerReason for precedent_embedding_worker_errors_total.
var AllowedEmbeddingWorkerReason = map[string]bool{
	"claim_failed":   true,
	"save_failed":    true,
	"mark_failed":    true,
	"enqueue_failed": true,
}

// AllowedEmbeddingSource for the source attribute of embedding outcomes.
var AllowedEmbeddingSource = map[string]bool{
	"response": true,
	"case":     true,
	"question": true,
}

// AllowedEmbeddingOutcomeStatus reports whether status is a known embedding outcome.
func AllowedEmbeddingOutcomeStatus(status string) bool {
	switch status {
	case "success", "failed":
		return true
	default:
		return false
	}
}

// AllowedBuildOutcome for precedent_typical_example_builds_total.
var AllowedBuildOutcome = map[string]bool{
	"built":  true,
	"empty":  true,
	"failed": true,
}

// allowedCacheNames bounds the cache attribute.
var allowedCacheNames = map[string]bool{
	"query_embedding": true,
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, allowedCacheNames)
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}
