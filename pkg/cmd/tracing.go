package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/taskflow/pkg/otelhelper"
)

// SetupTracing installs the OTLP tracer provider when enabled and returns its shutdown.
func SetupTracing(ctx context.Context, enabled bool, logger *slog.Logger) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	provider, err := otelhelper.NewTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Tracing enabled", "service", serviceName)

	return provider.Shutdown, nil
}
