// Package pipeline runs named tasks in dependency order with bounded retries,
// skip propagation and fail-fast semantics, and keeps an auditable history of runs.
//
// A Pipeline is not safe for concurrent use. Hosts that execute the same pipeline
// from several goroutines must serialise the calls.
package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 60 * time.Second
	DefaultTimeout    = time.Hour
)

// Pipeline owns its tasks and the history of its runs.
type Pipeline struct {
	name  string
	tasks []*Task
	index map[string]*Task

	defaultMaxRetries int
	defaultRetryDelay time.Duration
	defaultTimeout    time.Duration

	logger    *slog.Logger
	tracer    trace.Tracer
	publisher eventbus.EventPublisher
	sleeper   Sleeper
	now       func() time.Time
	newID     func(startedAt time.Time) string

	sequence int
	history  History
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithPublisher sends lifecycle events to publisher. Publish failures are logged and never fail a run.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

// WithSleeper replaces the blocking wait used between retries.
func WithSleeper(sleeper Sleeper) Option {
	return func(p *Pipeline) {
		p.sleeper = sleeper
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithIDGenerator replaces the execution id generator.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) {
		p.newID = func(time.Time) string { return newID() }
	}
}

func WithDefaultMaxRetries(n int) Option {
	return func(p *Pipeline) {
		p.defaultMaxRetries = max(n, 0)
	}
}

func WithDefaultRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		p.defaultRetryDelay = max(d, 0)
	}
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.defaultTimeout = max(d, 0)
	}
}

// New creates an empty pipeline.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:              name,
		index:             make(map[string]*Task),
		defaultMaxRetries: DefaultMaxRetries,
		defaultRetryDelay: DefaultRetryDelay,
		defaultTimeout:    DefaultTimeout,
		now:               time.Now,
		newID:             generateExecutionID,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = log.WithModule("pipeline")
	}

	p.logger = p.logger.With("pipeline", name)

	if p.tracer == nil {
		p.tracer = otelhelper.DefaultTracer()
	}

	return p
}

// AddTask registers a task and returns the pipeline for chaining.
//
// Declarations are not checked here: duplicate names and unknown dependencies are
// reported by ExecutionOrder and Execute.
func (p *Pipeline) AddTask(name string, body protocol.TaskBody, opts ...TaskOption) *Pipeline {
	task := &Task{
		name:       name,
		body:       body,
		maxRetries: p.defaultMaxRetries,
		retryDelay: p.defaultRetryDelay,
		timeout:    p.defaultTimeout,
		status:     models.TaskStatusPending,
	}

	for _, opt := range opts {
		opt(task)
	}

	p.tasks = append(p.tasks, task)
	if _, exists := p.index[name]; !exists {
		p.index[name] = task
	}

	return p
}

// AddTaskFunc registers a plain function as a task body.
func (p *Pipeline) AddTaskFunc(name string, fn protocol.TaskBodyFunc, opts ...TaskOption) *Pipeline {
	return p.AddTask(name, fn, opts...)
}

func (p *Pipeline) Name() string {
	return p.name
}

// Tasks returns the tasks in registration order.
func (p *Pipeline) Tasks() []*Task {
	return slices.Clone(p.tasks)
}

// Task returns the task registered under name.
func (p *Pipeline) Task(name string) (*Task, bool) {
	t, ok := p.index[name]

	return t, ok
}

// ExecutionOrder computes the order Execute would use.
func (p *Pipeline) ExecutionOrder() ([]string, error) {
	return ComputeOrder(p.tasks)
}

// TaskDependencies returns every direct and transitive dependency of name, in
// first-discovered order. Unknown names yield nil.
func (p *Pipeline) TaskDependencies(name string) []string {
	root, ok := p.index[name]
	if !ok {
		return nil
	}

	var out []string

	seen := map[string]bool{name: true}
	queue := slices.Clone(root.dependsOn)

	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]

		if seen[dep] {
			continue
		}

		seen[dep] = true
		out = append(out, dep)

		if t, ok := p.index[dep]; ok {
			queue = append(queue, t.dependsOn...)
		}
	}

	return out
}

// Status returns the inspection view: task statuses from the latest run and its record.
// TotalTasks counts registrations; a duplicated name, which ExecutionOrder rejects,
// appears once in TaskStatuses with the status of its first registration.
func (p *Pipeline) Status() models.PipelineStatus {
	status := models.PipelineStatus{
		PipelineName: p.name,
		TotalTasks:   len(p.tasks),
		TaskStatuses: make(map[string]models.TaskStatus, len(p.tasks)),
	}

	for _, t := range p.tasks {
		if _, seen := status.TaskStatuses[t.name]; !seen {
			status.TaskStatuses[t.name] = t.status
		}
	}

	if last, ok := p.history.Last(); ok {
		status.LastExecution = &last
	}

	return status
}

// History returns the pipeline's execution history.
func (p *Pipeline) History() *History {
	return &p.history
}

// ResetHistory drops every stored record. Sequence numbers keep increasing.
func (p *Pipeline) ResetHistory() {
	p.history.Reset()
}

// generateExecutionID derives the id from the run start time, with a uuid suffix
// for runs started within the same second.
func generateExecutionID(startedAt time.Time) string {
	return fmt.Sprintf("exec-%s-%s", startedAt.UTC().Format("20060102T150405Z"), uuid.New().String()[:8])
}
