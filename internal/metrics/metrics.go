// Package metrics wires the global OTEL meter provider and the Prometheus
// scrape endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// MetricProvider exposes meters and a shutdown hook.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

type metricProvider struct {
	mp *sdkmetric.MeterProvider
}

// NewMetricProvider builds the configured meter provider and installs it as
// the OTEL global.
func NewMetricProvider(opts ...Option) MetricProvider {
	options := newOptions(opts...)

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(options.serviceName),
		),
	)

	var readers []sdkmetric.Reader
	switch options.provider.Provider {
	case PrometheusProvider:
		promExporter, err := prometheus.New()
		if err != nil {
			panic(err)
		}
		readers = append(readers, promExporter)
	default:
		// A manual reader that nothing collects: measurements are not exported.
		readers = append(readers, sdkmetric.NewManualReader())
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(rsrc)}
	for _, r := range readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(mp)

	return &metricProvider{mp: mp}
}

func (m *metricProvider) Meter(name string, options ...metric.MeterOption) metric.Meter {
	return m.mp.Meter(name, options...)
}

func (m *metricProvider) Shutdown(ctx context.Context) error {
	return m.mp.Shutdown(ctx)
}

// ServePrometheusMetrics blocks serving /metrics for Prometheus scrapes.
func ServePrometheusMetrics(opts ...Option) error {
	options := newOptions(opts...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + options.port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
