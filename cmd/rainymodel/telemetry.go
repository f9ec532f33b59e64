package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// initTelemetry registers a process-wide TracerProvider so OTelTracing's
// spans are actually processed instead of silently no-op'd against the
// default global tracer. No exporter is wired: this service has no
// OTLP collector endpoint to point at in this spec, so the provider runs
// with its default (no-op) span processor — the SDK resource/sampler
// plumbing is still genuine, just not shipped anywhere yet.
func initTelemetry(ctx context.Context, serviceVersion string, logger *zap.Logger) (shutdown func(context.Context) error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("rainymodel"),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		logger.Warn("failed to build otel resource, tracing disabled", zap.Error(err))
		return func(context.Context) error { return nil }
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown
}
