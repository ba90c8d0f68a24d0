// Package events defines the lifecycle notifications emitted while a pipeline runs.
package events

import (
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic every pipeline event is published on.
const Topic = "taskflow.pipeline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent    EventType = "pipeline.run.started"
	RunFinishedEvent   EventType = "pipeline.run.finished"
	TaskRetryingEvent  EventType = "pipeline.task.retrying"
	TaskCompletedEvent EventType = "pipeline.task.completed"
	TaskFailedEvent    EventType = "pipeline.task.failed"
	TaskSkippedEvent   EventType = "pipeline.task.skipped"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	PipelineName string         `json:"pipeline_name"`
	ExecutionID  string         `json:"execution_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, pipelineName, executionID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		PipelineName: pipelineName,
		ExecutionID:  executionID,
		Metadata:     make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	Order []string `json:"order"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	Record models.ExecutionRecord `json:"record"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

// TaskRetrying is emitted after a failed attempt that will be retried.
type TaskRetrying struct {
	BaseEvent

	TaskName    string        `json:"task_name"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Error       string        `json:"error"`
	Delay       time.Duration `json:"delay"`
}

func (e TaskRetrying) GetType() EventType {
	return TaskRetryingEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskName string            `json:"task_name"`
	Record   models.TaskRecord `json:"record"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	TaskName string            `json:"task_name"`
	Record   models.TaskRecord `json:"record"`
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

type TaskSkipped struct {
	BaseEvent

	TaskName string `json:"task_name"`
	Reason   string `json:"reason"`
}

func (e TaskSkipped) GetType() EventType {
	return TaskSkippedEvent
}
