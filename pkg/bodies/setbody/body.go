// Package setbody provides a task body that writes values into the execution context.
package setbody

import (
	"context"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/template"
)

const ID = "set"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) Create(_ context.Context, taskName string, config map[string]any) (protocol.TaskBody, error) {
	values, _ := config["values"].(map[string]any)

	return &Body{task: taskName, values: values}, nil
}

func (*Factory) ID() string { return ID }

func (*Factory) Name() string { return "Set" }

func (*Factory) Description() string {
	return "Renders its values against the execution context and stores them in it."
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"values": map[string]any{
				"type":          "object",
				"description":   "Keys to write. String values support templating; later tasks read them as .ctx.<key>.",
				"minProperties": 1,
				"examples": []map[string]any{
					{"output_path": "s3://warehouse/{{ .ctx.date }}"},
				},
			},
		},
		"required":             []string{"values"},
		"additionalProperties": false,
	}
}

// Body sets every configured key. Values are rendered before any key is written.
type Body struct {
	task   string
	values map[string]any
}

func (b *Body) Invoke(_ context.Context, execCtx models.ExecutionContext) (any, error) {
	rendered, err := template.RenderConfig(b.values, b.task, execCtx)
	if err != nil {
		return nil, err
	}

	for k, v := range rendered {
		execCtx.Set(k, v)
	}

	return rendered, nil
}
