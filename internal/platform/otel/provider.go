// Package otel configures OpenTelemetry tracing for vault binaries.
package otel

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/sharedvault/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// settings is read from VAULT_OTEL_* variables.
type settings struct {
	Endpoint string `env:"OTEL_ENDPOINT"`
	// Enabled only disables tracing when set to "false".
	Enabled     string  `env:"OTEL_ENABLED"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

func (s settings) active() bool {
	return strings.TrimSpace(s.Endpoint) != "" && !strings.EqualFold(strings.TrimSpace(s.Enabled), "false")
}

// Setup registers a global tracer provider exporting to VAULT_OTEL_ENDPOINT.
// Without an endpoint, or with VAULT_OTEL_ENABLED=false, it registers nothing
// and returns a no-op shutdown.
//
// The returned shutdown flushes pending spans.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var cfg settings
	if err := config.ParseEnvPrefixed(&cfg, config.EnvPrefix); err != nil {
		return noop, err
	}
	if !cfg.active() {
		return noop, nil
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return noop, fmt.Errorf("otel sample ratio %v is outside [0, 1]", cfg.SampleRatio)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(componentProcessor{}),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// componentProcessor tags every span with the tracer that opened it.
type componentProcessor struct{}

func (componentProcessor) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	span.SetAttributes(attribute.String("vault.component", span.InstrumentationScope().Name))
}

func (componentProcessor) OnEnd(sdktrace.ReadOnlySpan)      {}
func (componentProcessor) Shutdown(context.Context) error   { return nil }
func (componentProcessor) ForceFlush(context.Context) error { return nil }
