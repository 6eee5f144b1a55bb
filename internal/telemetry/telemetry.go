// ABOUTME: OpenTelemetry tracing setup for the docwatch server
// ABOUTME: Installs an OTLP/HTTP tracer provider when an endpoint is configured

// Package telemetry configures distributed tracing.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

// Setup initialises tracing for serviceName. Tracing is opt-in: with an empty
// endpoint no global provider is registered and the returned shutdown is a
// no-op, leaving otel's default no-op tracer in place.
func Setup(ctx context.Context, endpoint, serviceName string, logger *slog.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if logger != nil {
		logger.Info("tracing enabled", "endpoint", endpoint, "service", serviceName)
	}

	return tp.Shutdown, nil
}
