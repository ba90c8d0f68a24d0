package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/taskflow/pkg/cmd"
	"github.com/dukex/taskflow/pkg/definition"
	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/pipeline"
	"github.com/dukex/taskflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// environment is what every command needs before it can build pipelines.
type environment struct {
	logger   *slog.Logger
	registry *registry.Registry
	eventBus eventbus.EventBus
	shutdown func(context.Context) error
}

func newEnvironment(ctx context.Context, command *cli.Command, logger *slog.Logger) (*environment, error) {
	reg, err := cmd.NewRegistry(ctx, logger, command.String("plugins-path"))
	if err != nil {
		return nil, err
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
	if err != nil {
		return nil, err
	}

	shutdown, err := cmd.SetupTracing(ctx, command.Bool("tracing"), logger)
	if err != nil {
		if bus != nil {
			_ = bus.Close()
		}

		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	return &environment{logger: logger, registry: reg, eventBus: bus, shutdown: shutdown}, nil
}

func (e *environment) Close(ctx context.Context) {
	if e.eventBus != nil {
		if err := e.eventBus.Close(); err != nil {
			e.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if err := e.shutdown(ctx); err != nil {
		e.logger.ErrorContext(ctx, "Failed to shut down tracing", "error", err)
	}
}

func (e *environment) pipelineOptions() []pipeline.Option {
	opts := []pipeline.Option{pipeline.WithLogger(e.logger)}
	if e.eventBus != nil {
		opts = append(opts, pipeline.WithPublisher(e.eventBus))
	}

	return opts
}

// load reads, validates and builds the pipeline defined at path.
func (e *environment) load(ctx context.Context, path string) (*pipeline.Pipeline, *models.PipelineDefinition, models.ExecutionContext, error) {
	def, err := definition.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	p, execCtx, err := definition.Build(ctx, def, e.registry, e.pipelineOptions()...)
	if err != nil {
		return nil, nil, nil, err
	}

	return p, def, execCtx, nil
}

// parseContextValues turns key=value pairs into context entries. Values are read as
// YAML scalars, so numbers and booleans keep their type.
func parseContextValues(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid context value %q, expected key=value", pair)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}

		out[strings.TrimSpace(key)] = value
	}

	return out, nil
}
