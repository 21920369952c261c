package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const (
	// MeterScope is the instrumentation scope used for all precedent instruments.
	MeterScope         = "github.com/formbricks/precedent/internal/observability"
	defaultServiceName = "precedent"
	cardinalityLimit   = 2000
)

// durationHistogramBounds are second-based buckets for every *_duration_seconds histogram.
// OTel default boundaries are millisecond-oriented.
var durationHistogramBounds = []float64{0, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the Prometheus MeterProvider.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: precedent).
	ServiceName string
}

// NewPrometheusMeterProvider creates a MeterProvider backed by a private Prometheus registry
// and returns it together with the /metrics handler.
// Caller must call provider.Shutdown on exit.
func NewPrometheusMeterProvider(cfg MeterProviderConfig) (*sdkmetric.MeterProvider, http.Handler, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	// Use a single resource to avoid Schema URL conflicts when merging with resource.Default().
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(durationView()),
	)

	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func durationView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: "precedent_*_duration_seconds"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationHistogramBounds}},
	)
}
