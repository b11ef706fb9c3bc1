// Package otel bootstraps OpenTelemetry tracing for module binaries.
package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/louisbranch/healthrecords/internal/platform/config"
)

// Settings selects where spans are exported and how many are kept.
type Settings struct {
	// Enabled is a string so an empty value reads as unset rather than false.
	Enabled     string  `env:"HEALTHRECORDS_OTEL_ENABLED"`
	Endpoint    string  `env:"HEALTHRECORDS_OTEL_ENDPOINT"`
	SampleRatio float64 `env:"HEALTHRECORDS_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// active reports whether spans should leave the process.
func (s Settings) active() bool {
	if strings.EqualFold(strings.TrimSpace(s.Enabled), "false") {
		return false
	}
	return strings.TrimSpace(s.Endpoint) != ""
}

func (s Settings) validate() error {
	if s.SampleRatio < 0 || s.SampleRatio > 1 {
		return fmt.Errorf("otel sample ratio must be within [0, 1], got %v", s.SampleRatio)
	}
	return nil
}

// Setup reads Settings from the process environment and installs a tracer
// provider for serviceName. See SetupWithSettings.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	var settings Settings
	if err := config.ParseEnv(&settings); err != nil {
		return noopShutdown, err
	}
	return SetupWithSettings(ctx, serviceName, settings)
}

// SetupWithSettings installs the global tracer provider used by the storage
// spans. Without an endpoint it registers nothing and the returned shutdown
// is a no-op; otherwise shutdown flushes batched spans and must be called.
func SetupWithSettings(ctx context.Context, serviceName string, settings Settings) (func(context.Context) error, error) {
	if err := settings.validate(); err != nil {
		return noopShutdown, err
	}
	if !settings.active() {
		return noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimSpace(settings.Endpoint)))
	if err != nil {
		return noopShutdown, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.DBSystemSqlite,
	))
	if err != nil {
		return noopShutdown, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}

func noopShutdown(context.Context) error { return nil }
