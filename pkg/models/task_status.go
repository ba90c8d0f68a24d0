// Package models defines the data types shared by the pipeline engine, its event bus and its HTTP surface.
package models

// TaskStatus represents the lifecycle state of a task within a run.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending" // Not reached in the current run
	TaskStatusRunning TaskStatus = "running" // Body is being invoked
	TaskStatusSuccess TaskStatus = "success" // Body returned without failure
	TaskStatusFailed  TaskStatus = "failed"  // Body failed on every attempt
	TaskStatusSkipped TaskStatus = "skipped" // A dependency did not succeed
)

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// SkipReasonDependencyFailed is recorded for tasks skipped because a dependency did not succeed.
const SkipReasonDependencyFailed = "dependency failed"
