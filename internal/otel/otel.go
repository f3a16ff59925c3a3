// Package otel wires OpenTelemetry metrics for the crew: a Prometheus-backed meter
// provider and the scheduler instruments.
package otel

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/iSevenDays/motleycrew"

// AttrCrewMode is the resource attribute carrying the scheduling mode of the process.
const AttrCrewMode = attribute.Key("motleycrew.mode")

// Config describes the process that reports crew metrics.
type Config struct {
	ServiceName string // default "motleycrew"
	Version     string
	Mode        string // crew scheduling mode, sync or concurrent
}

// workerDurationBuckets spans quick local tools up to long model-backed workers.
var workerDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}

// Views returns the crew's metric views. Worker durations bucket up to ten minutes.
func Views() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "motleycrew_worker_invoke_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: workerDurationBuckets}},
		),
	}
}

// InitMeterProvider installs the global MeterProvider with a Prometheus exporter and returns
// the /metrics handler. Call once per process before InitMetrics; a failure leaves the crew
// running without metrics.
func InitMeterProvider(ctx context.Context, cfg Config) (http.Handler, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "motleycrew"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	if cfg.Mode != "" {
		attrs = append(attrs, AttrCrewMode.String(cfg.Mode))
	}
	res, err := resource.New(ctx, resource.WithFromEnv(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(Views()...),
	)
	otelglobal.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

// Meter returns the global meter for motleycrew (after InitMeterProvider).
func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Common attribute keys for metrics.
var (
	AttrRecipe  = attribute.Key("recipe")
	AttrStatus  = attribute.Key("status")
	AttrOutcome = attribute.Key("outcome")
	AttrMode    = attribute.Key("mode")
)
