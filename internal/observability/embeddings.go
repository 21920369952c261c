package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmbeddingMetrics records embedding queue metrics (enqueue, provider calls, worker).
type EmbeddingMetrics interface {
	RecordItemsEnqueued(ctx context.Context, count int64)
	RecordProviderError(ctx context.Context, reason string)
	RecordEmbeddingOutcome(ctx context.Context, source, status string)
	RecordWorkerError(ctx context.Context, reason string)
	RecordEmbeddingDuration(ctx context.Context, duration time.Duration, status string)
	SetQueueDepth(pending, failed int)
}

type embeddingMetrics struct {
	itemsEnqueued  metric.Int64Counter
	providerErrors metric.Int64Counter
	outcomes       metric.Int64Counter
	workerErrors   metric.Int64Counter
	duration       metric.Float64Histogram
	pending        atomic.Int64
	failed         atomic.Int64
	queueGauge     metric.Int64ObservableGauge
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	itemsEnqueued, err := meter.Int64Counter(
		MetricNameEmbeddingItemsEnqueued,
		metric.WithDescription("Total embedding queue items enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding items enqueued counter: %w", err)
	}

	providerErrors, err := meter.Int64Counter(
		MetricNameEmbeddingProviderErrors,
		metric.WithDescription("Total embedding provider call failures by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider errors counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameEmbeddingOutcomes,
		metric.WithDescription("Total processed queue items by source and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding outcomes counter: %w", err)
	}

	workerErrors, err := meter.Int64Counter(
		MetricNameEmbeddingWorkerErrors,
		metric.WithDescription("Total embedding worker storage errors (claim, save, mark)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding worker errors counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Per-item embedding duration including the provider call (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	m := &embeddingMetrics{
		itemsEnqueued:  itemsEnqueued,
		providerErrors: providerErrors,
		outcomes:       outcomes,
		workerErrors:   workerErrors,
		duration:       duration,
	}

	m.queueGauge, err = meter.Int64ObservableGauge(
		MetricNameEmbeddingQueueDepth,
		metric.WithDescription("Current embedding queue items by status (pending, failed)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.pending.Load(), metric.WithAttributes(attribute.String(AttrStatus, "pending")))
			o.Observe(m.failed.Load(), metric.WithAttributes(attribute.String(AttrStatus, "failed")))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding queue depth gauge: %w", err)
	}

	return m, nil
}

func (e *embeddingMetrics) RecordItemsEnqueued(ctx context.Context, count int64) {
	e.itemsEnqueued.Add(ctx, count)
}

func (e *embeddingMetrics) RecordProviderError(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedEmbeddingProviderReason)
	e.providerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (e *embeddingMetrics) RecordEmbeddingOutcome(ctx context.Context, source, status string) {
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSource, NormalizeReason(source, AllowedEmbeddingSource)),
		attribute.String(AttrStatus, normalizeEmbeddingStatus(status)),
	))
}

func (e *embeddingMetrics) RecordWorkerError(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedEmbeddingWorkerReason)
	e.workerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (e *embeddingMetrics) RecordEmbeddingDuration(ctx context.Context, duration time.Duration, status string) {
	status = normalizeEmbeddingStatus(status)
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (e *embeddingMetrics) SetQueueDepth(pending, failed int) {
	e.pending.Store(int64(pending))
	e.failed.Store(int64(failed))
}

func normalizeEmbeddingStatus(status string) string {
	if AllowedEmbeddingOutcomeStatus(status) {
		return status
	}

	return "other"
}
