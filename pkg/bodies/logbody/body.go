// Package logbody provides a task body that writes a templated message to the log.
package logbody

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/template"
)

const ID = "log"

// Factory creates log bodies that write through logger.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (f *Factory) Create(_ context.Context, taskName string, config map[string]any) (protocol.TaskBody, error) {
	message, _ := config["message"].(string)

	level := slog.LevelInfo
	if raw, ok := config["level"].(string); ok {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", raw, err)
		}
	}

	fields, _ := config["fields"].(map[string]any)

	return &Body{
		task:    taskName,
		message: message,
		level:   level,
		fields:  fields,
		logger:  f.logger.With("task", taskName, "body", ID),
	}, nil
}

func (*Factory) ID() string { return ID }

func (*Factory) Name() string { return "Log" }

func (*Factory) Description() string {
	return "Writes a templated message to the log and returns the rendered text."
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with the execution context.",
				"examples": []string{
					"extracted {{ .ctx.rows }} rows",
					"starting {{ .task }}",
				},
			},
			"level": map[string]any{
				"type":    "string",
				"default": "info",
				"enum":    []string{"debug", "info", "warn", "error"},
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Extra attributes attached to the log line. String values support templating.",
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

// Body logs one rendered message per invocation.
type Body struct {
	task    string
	message string
	level   slog.Level
	fields  map[string]any
	logger  *slog.Logger
}

func (b *Body) Invoke(ctx context.Context, execCtx models.ExecutionContext) (any, error) {
	message, err := template.RenderString(b.message, template.Data(b.task, execCtx))
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	fields, err := template.RenderConfig(b.fields, b.task, execCtx)
	if err != nil {
		return nil, err
	}

	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}

	b.logger.Log(ctx, b.level, message, attrs...)

	return message, nil
}
