// Package sleepbody provides a task body that waits for a fixed duration.
package sleepbody

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
)

const ID = "sleep"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) Create(_ context.Context, _ string, config map[string]any) (protocol.TaskBody, error) {
	var d models.Duration
	if err := d.Parse(config["duration"]); err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}

	return &Body{duration: d.Std()}, nil
}

func (*Factory) ID() string { return ID }

func (*Factory) Name() string { return "Sleep" }

func (*Factory) Description() string {
	return "Waits for a duration. Returns early with an error when the task timeout expires."
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"type":        []string{"string", "number"},
				"description": "Go duration string or a number of seconds.",
				"examples":    []any{"1500ms", "2m", 5},
			},
		},
		"required":             []string{"duration"},
		"additionalProperties": false,
	}
}

type Body struct {
	duration time.Duration
}

func (b *Body) Invoke(ctx context.Context, _ models.ExecutionContext) (any, error) {
	timer := time.NewTimer(b.duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return b.duration.String(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
