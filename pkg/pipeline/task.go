package pipeline

import (
	"slices"
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
)

// Task is a named unit of work registered on a Pipeline.
//
// The execution policy is fixed at registration. Run state is written only by the
// runner and executor and is overwritten on every run.
type Task struct {
	name       string
	body       protocol.TaskBody
	dependsOn  []string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration

	status    models.TaskStatus
	startedAt *time.Time
	endedAt   *time.Time
	lastError string
	attempts  int
	result    any
}

// TaskOption overrides the pipeline defaults for one task.
type TaskOption func(*Task)

// DependsOn declares tasks that must succeed before this one runs.
func DependsOn(names ...string) TaskOption {
	return func(t *Task) {
		t.dependsOn = append(t.dependsOn, names...)
	}
}

// MaxRetries sets the number of retries after the first attempt. Negative values are treated as 0.
func MaxRetries(n int) TaskOption {
	return func(t *Task) {
		t.maxRetries = max(n, 0)
	}
}

// RetryDelay sets the fixed wait between attempts.
func RetryDelay(d time.Duration) TaskOption {
	return func(t *Task) {
		t.retryDelay = max(d, 0)
	}
}

// Timeout sets the per-attempt budget. Zero disables it.
func Timeout(d time.Duration) TaskOption {
	return func(t *Task) {
		t.timeout = max(d, 0)
	}
}

func (t *Task) Name() string                 { return t.name }
func (t *Task) Body() protocol.TaskBody      { return t.body }
func (t *Task) DependsOn() []string          { return slices.Clone(t.dependsOn) }
func (t *Task) MaxRetries() int              { return t.maxRetries }
func (t *Task) RetryDelay() time.Duration    { return t.retryDelay }
func (t *Task) Timeout() time.Duration       { return t.timeout }
func (t *Task) Status() models.TaskStatus    { return t.status }
func (t *Task) LastError() string            { return t.lastError }
func (t *Task) Attempts() int                { return t.attempts }
func (t *Task) Result() any                  { return t.result }
func (t *Task) StartedAt() (time.Time, bool) { return deref(t.startedAt) }
func (t *Task) EndedAt() (time.Time, bool)   { return deref(t.endedAt) }

// MaxAttempts is the total number of times the body may be invoked in one run.
func (t *Task) MaxAttempts() int {
	return t.maxRetries + 1
}

func (t *Task) reset() {
	t.status = models.TaskStatusPending
	t.startedAt = nil
	t.endedAt = nil
	t.lastError = ""
	t.attempts = 0
	t.result = nil
}

func (t *Task) start(now time.Time) {
	t.status = models.TaskStatusRunning
	t.startedAt = &now
	t.endedAt = nil
	t.lastError = ""
	t.attempts = 0
	t.result = nil
}

func (t *Task) finish(now time.Time, result any, err error) {
	t.endedAt = &now
	if err != nil {
		t.status = models.TaskStatusFailed
		t.lastError = err.Error()

		return
	}

	t.status = models.TaskStatusSuccess
	t.result = result
}

func (t *Task) skip() {
	t.reset()
	t.status = models.TaskStatusSkipped
}

// record returns the per-task entry for an ExecutionRecord.
func (t *Task) record() models.TaskRecord {
	rec := models.TaskRecord{
		Status:   t.status,
		Attempts: t.attempts,
		Error:    t.lastError,
	}

	if t.status == models.TaskStatusSkipped {
		rec.Reason = models.SkipReasonDependencyFailed

		return rec
	}

	if t.startedAt != nil {
		v := *t.startedAt
		rec.StartedAt = &v
	}

	if t.endedAt != nil {
		v := *t.endedAt
		rec.EndedAt = &v
	}

	if t.startedAt != nil && t.endedAt != nil {
		seconds := t.endedAt.Sub(*t.startedAt).Seconds()
		rec.DurationSeconds = &seconds
	}

	return rec
}

func deref(t *time.Time) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}

	return *t, true
}
