package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TypicalExampleMetrics records typical-example rebuilds.
type TypicalExampleMetrics interface {
	RecordBuild(ctx context.Context, outcome string, clusters int)
}

type typicalExampleMetrics struct {
	builds   metric.Int64Counter
	clusters metric.Int64Histogram
}

// NewTypicalExampleMetrics creates TypicalExampleMetrics. Returns (nil, nil) when meter is nil.
func NewTypicalExampleMetrics(meter metric.Meter) (TypicalExampleMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	builds, err := meter.Int64Counter(
		MetricNameTypicalExampleBuilds,
		metric.WithDescription("Total typical-example bucket rebuilds by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create typical example builds counter: %w", err)
	}

	clusters, err := meter.Int64Histogram(
		MetricNameClusterCount,
		metric.WithDescription("Non-empty clusters produced per rebuild"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 8, 13, 21, 50),
	)
	if err != nil {
		return nil, fmt.Errorf("create cluster count histogram: %w", err)
	}

	return &typicalExampleMetrics{builds: builds, clusters: clusters}, nil
}

func (m *typicalExampleMetrics) RecordBuild(ctx context.Context, outcome string, clusters int) {
	outcome = NormalizeReason(outcome, AllowedBuildOutcome)
	m.builds.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))

	if outcome != "failed" {
		m.clusters.Record(ctx, int64(clusters))
	}
}
