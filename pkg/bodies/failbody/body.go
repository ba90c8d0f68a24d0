// Package failbody provides a task body that fails on purpose, for exercising retry
// and skip behaviour in definitions.
package failbody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/template"
)

const ID = "fail"

var ErrInjected = errors.New("injected failure")

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) Create(_ context.Context, taskName string, config map[string]any) (protocol.TaskBody, error) {
	message, _ := config["message"].(string)
	if message == "" {
		message = "task {{ .task }} failed"
	}

	untilAttempt := 0
	switch v := config["until_attempt"].(type) {
	case int:
		untilAttempt = v
	case float64:
		untilAttempt = int(v)
	}

	return &Body{task: taskName, message: message, untilAttempt: untilAttempt}, nil
}

func (*Factory) ID() string { return ID }

func (*Factory) Name() string { return "Fail" }

func (*Factory) Description() string {
	return "Returns an error. With until_attempt it fails that many invocations, then succeeds."
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Error text. Supports templating.",
			},
			"until_attempt": map[string]any{
				"type":        "integer",
				"description": "Number of invocations that fail before the body starts succeeding. 0 fails forever.",
				"minimum":     0,
				"default":     0,
			},
		},
		"additionalProperties": false,
	}
}

// Body counts invocations over its whole lifetime, across runs.
type Body struct {
	task         string
	message      string
	untilAttempt int

	mu    sync.Mutex
	calls int
}

func (b *Body) Invoke(_ context.Context, execCtx models.ExecutionContext) (any, error) {
	b.mu.Lock()
	b.calls++
	calls := b.calls
	b.mu.Unlock()

	if b.untilAttempt > 0 && calls > b.untilAttempt {
		return calls, nil
	}

	message, err := template.RenderString(b.message, template.Data(b.task, execCtx))
	if err != nil {
		message = b.message
	}

	return nil, fmt.Errorf("%w: %s", ErrInjected, message)
}
