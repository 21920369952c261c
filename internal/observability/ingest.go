package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestMetrics records CSV ingestion metrics.
type IngestMetrics interface {
	RecordRun(ctx context.Context, outcome string, duration time.Duration)
	RecordFlush(ctx context.Context, rows, duplicates int, duration time.Duration, status string)
	RecordInvalidRow(ctx context.Context)
}

type ingestMetrics struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	rowsStored    metric.Int64Counter
	duplicates    metric.Int64Counter
	invalidRows   metric.Int64Counter
	flushDuration metric.Float64Histogram
}

// NewIngestMetrics creates IngestMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewIngestMetrics(meter metric.Meter) (IngestMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	runs, err := meter.Int64Counter(
		MetricNameIngestRuns,
		metric.WithDescription("Total ingestion runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest runs counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		MetricNameIngestRunDuration,
		metric.WithDescription("Ingestion run duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest run duration histogram: %w", err)
	}

	rowsStored, err := meter.Int64Counter(
		MetricNameIngestRowsStored,
		metric.WithDescription("Total response rows upserted after deduplication"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest rows counter: %w", err)
	}

	duplicates, err := meter.Int64Counter(
		MetricNameIngestDuplicates,
		metric.WithDescription("Total rows dropped by intra-batch deduplication"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest duplicates counter: %w", err)
	}

	invalidRows, err := meter.Int64Counter(
		MetricNameIngestInvalidRows,
		metric.WithDescription("Total data rows rejected by validation"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest invalid rows counter: %w", err)
	}

	flushDuration, err := meter.Float64Histogram(
		MetricNameIngestFlushDuration,
		metric.WithDescription("Batch flush duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest flush duration histogram: %w", err)
	}

	return &ingestMetrics{
		runs:          runs,
		runDuration:   runDuration,
		rowsStored:    rowsStored,
		duplicates:    duplicates,
		invalidRows:   invalidRows,
		flushDuration: flushDuration,
	}, nil
}

func (m *ingestMetrics) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	outcome = NormalizeReason(outcome, AllowedIngestOutcome)
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *ingestMetrics) RecordFlush(ctx context.Context, rows, duplicates int, duration time.Duration, status string) {
	status = NormalizeReason(status, AllowedFlushStatus)
	m.rowsStored.Add(ctx, int64(rows))
	m.duplicates.Add(ctx, int64(duplicates))
	m.flushDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (m *ingestMetrics) RecordInvalidRow(ctx context.Context) {
	m.invalidRows.Add(ctx, 1)
}
