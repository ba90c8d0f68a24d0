// Package protocol defines the contracts between the pipeline engine and pluggable task bodies.
package protocol

import (
	"context"

	"github.com/dukex/taskflow/pkg/models"
)

// TaskBody is the unit of work behind a task. The engine only observes whether
// Invoke returns an error and how long it took; the result value is opaque.
type TaskBody interface {
	Invoke(ctx context.Context, execCtx models.ExecutionContext) (any, error)
}

// TaskBodyFunc adapts a plain function to TaskBody.
type TaskBodyFunc func(ctx context.Context, execCtx models.ExecutionContext) (any, error)

// Invoke calls f.
func (f TaskBodyFunc) Invoke(ctx context.Context, execCtx models.ExecutionContext) (any, error) {
	return f(ctx, execCtx)
}

// TaskBodyFactory creates task bodies of one type from their configuration.
type TaskBodyFactory interface {
	// Create builds a body for the task named taskName.
	Create(ctx context.Context, taskName string, config map[string]any) (TaskBody, error)

	// ID returns the type identifier used in definition files.
	ID() string

	// Name returns the human-readable name.
	Name() string

	// Description returns what bodies of this type do.
	Description() string

	// Schema returns the JSON schema the configuration must satisfy.
	Schema() map[string]any
}
