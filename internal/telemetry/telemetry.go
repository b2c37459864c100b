// Package telemetry installs the OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/erazemk/orozarna/internal/config"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup installs an OTLP/HTTP tracer provider when cfg names an endpoint.
// Without one the global no-op provider stays and the returned Shutdown does nothing.
func Setup(ctx context.Context, cfg config.TracingConfig) (Shutdown, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	provider := NewProvider(exporter, cfg.ServiceName)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// NewProvider returns a batching tracer provider for exporter.
func NewProvider(exporter sdktrace.SpanExporter, serviceName string) *sdktrace.TracerProvider {
	if serviceName == "" {
		serviceName = "orozarna"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
}
