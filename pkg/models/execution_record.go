package models

import (
	"maps"
	"slices"
	"time"
)

// TaskRecord is the per-task entry of an ExecutionRecord.
type TaskRecord struct {
	Status          TaskStatus `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	Attempts        int        `json:"attempts,omitempty"`
	Error           string     `json:"error,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// ExecutionRecord is the snapshot of one pipeline run.
//
// ID is derived from the run start time; Sequence is the ordering key, starting at 1
// and increasing by one per run of the same pipeline.
//
// Tasks only holds entries for tasks the run reached; a task missing from it was never
// started because an earlier task failed.
type ExecutionRecord struct {
	ID           string                `json:"execution_id"`
	Sequence     int                   `json:"sequence"`
	PipelineName string                `json:"pipeline_name"`
	StartedAt    time.Time             `json:"started_at"`
	EndedAt      time.Time             `json:"ended_at"`
	Status       RunStatus             `json:"status"`
	FailedTask   string                `json:"failed_task,omitempty"`
	Order        []string              `json:"order"`
	Tasks        map[string]TaskRecord `json:"tasks"`
}

// Succeeded reports whether the run finished without a failed task.
func (r ExecutionRecord) Succeeded() bool {
	return r.Status == RunStatusSuccess
}

// Duration returns the wall-clock time of the run.
func (r ExecutionRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Clone returns a deep copy so callers cannot reach into stored history.
func (r ExecutionRecord) Clone() ExecutionRecord {
	out := r
	out.Order = slices.Clone(r.Order)
	out.Tasks = make(map[string]TaskRecord, len(r.Tasks))

	for name, rec := range r.Tasks {
		out.Tasks[name] = rec.clone()
	}

	return out
}

func (t TaskRecord) clone() TaskRecord {
	out := t
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}

	if t.EndedAt != nil {
		v := *t.EndedAt
		out.EndedAt = &v
	}

	if t.DurationSeconds != nil {
		v := *t.DurationSeconds
		out.DurationSeconds = &v
	}

	return out
}

// PipelineStatus is the inspection view of a pipeline.
type PipelineStatus struct {
	PipelineName  string                `json:"pipeline_name"`
	TotalTasks    int                   `json:"total_tasks"`
	TaskStatuses  map[string]TaskStatus `json:"task_statuses"`
	LastExecution *ExecutionRecord      `json:"last_execution,omitempty"`
}

// TaskNames returns the task names of the status in lexical order.
func (s PipelineStatus) TaskNames() []string {
	return slices.Sorted(maps.Keys(s.TaskStatuses))
}
