// Package testutil provides test data builders for pipeline definitions.
package testutil

import (
	"github.com/dukex/taskflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestTask creates a log task definition with default values that can be overridden.
func CreateTestTask(overrides ...func(*models.TaskDefinition)) *models.TaskDefinition {
	task := &models.TaskDefinition{
		Name:   "task-" + uuid.New().String()[:8],
		Type:   "log",
		Config: map[string]any{"message": "test", "level": "info"},
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// WithName sets the task name.
func WithName(name string) func(*models.TaskDefinition) {
	return func(t *models.TaskDefinition) {
		t.Name = name
	}
}

// WithType sets the body type and its configuration.
func WithType(bodyType string, config map[string]any) func(*models.TaskDefinition) {
	return func(t *models.TaskDefinition) {
		t.Type = bodyType
		t.Config = config
	}
}

// WithDependsOn sets the task dependencies.
func WithDependsOn(names ...string) func(*models.TaskDefinition) {
	return func(t *models.TaskDefinition) {
		t.DependsOn = names
	}
}

// WithMaxRetries sets the task retry count.
func WithMaxRetries(n int) func(*models.TaskDefinition) {
	return func(t *models.TaskDefinition) {
		t.MaxRetries = &n
	}
}

// CreateTestDefinition creates a definition holding tasks.
func CreateTestDefinition(name string, tasks ...*models.TaskDefinition) *models.PipelineDefinition {
	return &models.PipelineDefinition{
		Name:    name,
		Context: map[string]any{},
		Tasks:   tasks,
	}
}
