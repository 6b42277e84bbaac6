package services

import (
	"context"
	"net/http"
	"time"

	"github.com/aether-sd/aether/core/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricApi "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsService struct {
	Meter                metric.Meter
	ApiTimeMetric        metric.Float64Histogram
	GenerationTimeMetric metric.Float64Histogram
	GenerationsInFlight  metric.Int64UpDownCounter

	provider *metricApi.MeterProvider
	registry *prometheus.Registry
}

func (m *MetricsService) ObserveAPICall(method string, path string, duration float64) {
	opts := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	)
	m.ApiTimeMetric.Record(context.Background(), duration, opts)
}

// ObserveGeneration records one finished generation. An empty kind means
// success.
func (m *MetricsService) ObserveGeneration(kind schema.ErrorKind, duration time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "success"
	}
	m.GenerationTimeMetric.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *MetricsService) GenerationStarted() {
	m.GenerationsInFlight.Add(context.Background(), 1)
}

func (m *MetricsService) GenerationFinished() {
	m.GenerationsInFlight.Add(context.Background(), -1)
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewMetricsService bootstraps the OpenTelemetry pipeline for Prometheus
// export on a registry of its own. Call Shutdown when done.
func NewMetricsService() (*MetricsService, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := metricApi.NewMeterProvider(metricApi.WithReader(exporter))
	meter := provider.Meter("github.com/aether-sd/aether")

	apiTimeMetric, err := meter.Float64Histogram("api_call", metric.WithDescription("api calls"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	generationTimeMetric, err := meter.Float64Histogram("image_generation",
		metric.WithDescription("image generations by outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("image_generations_in_flight",
		metric.WithDescription("engine processes currently running"))
	if err != nil {
		return nil, err
	}

	return &MetricsService{
		Meter:                meter,
		ApiTimeMetric:        apiTimeMetric,
		GenerationTimeMetric: generationTimeMetric,
		GenerationsInFlight:  inFlight,
		provider:             provider,
		registry:             registry,
	}, nil
}

func (m *MetricsService) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
