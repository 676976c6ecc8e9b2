// Package otel wires OpenTelemetry metrics with a Prometheus exporter.
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

const meterName = "github.com/plandash/plandash"

// InitMeterProvider installs the global MeterProvider, backed by a dedicated
// Prometheus registry, and hands back the handler that serves its exposition
// on /metrics. Call once at server startup; on error the server falls back
// to a plain-text /metrics stub.
func InitMeterProvider(ctx context.Context, serviceName string) (http.Handler, error) {
	if serviceName == "" {
		serviceName = "plandash"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	otelglobal.SetMeterProvider(sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

// Meter returns the plandash meter off the global provider.
func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Attribute keys shared by the instruments in metrics.go.
var (
	AttrStatus = attribute.Key("status")
	AttrSource = attribute.Key("source")
	AttrEvent  = attribute.Key("event")
	AttrRoute  = attribute.Key("http.route")
)
