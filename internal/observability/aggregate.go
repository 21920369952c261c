package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all precedent metric collectors. When metrics are disabled, all fields are nil.
// Components that accept one of the interfaces can receive the corresponding field; they already handle nil.
type Metrics struct {
	Ingest          IngestMetrics
	Embeddings      EmbeddingMetrics
	TypicalExamples TypicalExampleMetrics
	Cache           CacheMetrics
	API             APIMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	ingest, err := NewIngestMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("ingest metrics: %w", err)
	}

	embeddings, err := NewEmbeddingMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("embedding metrics: %w", err)
	}

	typical, err := NewTypicalExampleMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("typical example metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Ingest:          ingest,
		Embeddings:      embeddings,
		TypicalExamples: typical,
		Cache:           cache,
		API:             api,
	}, nil
}
