// Package cmd holds shared startup helpers for module binaries.
package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	gootel "go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/louisbranch/healthrecords/internal/platform/otel"
)

// ServiceMaintenance names the maintenance binary in traces and logs.
const ServiceMaintenance = "healthrecords-maintenance"

const defaultFlushTimeout = 5 * time.Second

// RunOptions tunes RunWithTelemetryAndOptions.
type RunOptions struct {
	// FlushTimeout bounds the final span export after run returns.
	FlushTimeout time.Duration
	// Now is used to time the run. Defaults to time.Now.
	Now func() time.Time
}

// RunWithTelemetry is RunWithTelemetryAndOptions with default options.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	return RunWithTelemetryAndOptions(ctx, service, RunOptions{}, run)
}

// RunWithTelemetryAndOptions installs tracing for service and calls run inside
// a root span, so every storage span of one invocation shares a trace.
// Pending spans are flushed even when run fails.
func RunWithTelemetryAndOptions(ctx context.Context, service string, options RunOptions, run func(context.Context) error) (err error) {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return fmt.Errorf("service name is required")
	case run == nil:
		return fmt.Errorf("run function is required")
	case ctx == nil:
		return fmt.Errorf("context is required")
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("%s telemetry: %w", service, err)
	}
	defer flush(service, options.FlushTimeout, shutdown)

	ctx, span := gootel.Tracer(service).Start(ctx, service+".run")
	started := now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
		log.Printf("%s finished in %s", service, now().Sub(started).Round(time.Millisecond))
	}()

	return run(ctx)
}

func flush(service string, timeout time.Duration, shutdown func(context.Context) error) {
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%s telemetry flush: %v", service, err)
	}
}
