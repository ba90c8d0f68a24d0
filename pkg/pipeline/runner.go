package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Execute performs one run and appends its record to the history.
//
// Configuration and cycle errors are returned before any task is touched and leave
// the history unchanged. Otherwise tasks run one at a time in ExecutionOrder: a task
// with a dependency that did not succeed is skipped, and the first task that fails
// on every attempt stops the run. No task body runs after that failure; tasks
// downstream of it are recorded as Skipped, every other later task stays Pending and
// absent from the record. A nil execCtx is replaced by an empty one.
func (p *Pipeline) Execute(ctx context.Context, execCtx models.ExecutionContext) (*models.ExecutionRecord, error) {
	order, err := ComputeOrder(p.tasks)
	if err != nil {
		p.logger.ErrorContext(ctx, "Pipeline validation failed", "error", err)

		return nil, fmt.Errorf("pipeline %q: %w", p.name, err)
	}

	if execCtx == nil {
		execCtx = models.ExecutionContext{}
	}

	p.sequence++

	startedAt := p.now()

	record := models.ExecutionRecord{
		ID:           p.newID(startedAt),
		Sequence:     p.sequence,
		PipelineName: p.name,
		StartedAt:    startedAt,
		Order:        order,
		Tasks:        make(map[string]models.TaskRecord, len(order)),
	}

	logger := p.logger.With("execution_id", record.ID)
	logger.InfoContext(ctx, "Starting pipeline execution", "tasks", len(order), "order", order)

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "pipeline.execute",
		attribute.String(otelhelper.PipelineNameKey, p.name),
		attribute.String(otelhelper.ExecutionIDKey, record.ID),
	)
	defer span.End()

	for _, t := range p.tasks {
		t.reset()
	}

	executor := NewExecutor(logger, p.tracer, p.sleeper, p.now)
	executor.onRetry = func(ctx context.Context, task *Task, attempt int, err error) {
		p.publish(ctx, logger, record.ID, events.TaskRetrying{
			BaseEvent:   events.NewBaseEvent(events.TaskRetryingEvent, p.name, record.ID),
			TaskName:    task.name,
			Attempt:     attempt + 1,
			MaxAttempts: task.MaxAttempts(),
			Error:       err.Error(),
			Delay:       task.retryDelay,
		})
	}

	p.publish(ctx, logger, record.ID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, p.name, record.ID),
		Order:     order,
	})

	for i, name := range order {
		task := p.index[name]

		if !p.dependenciesSucceeded(task) {
			task.skip()
			record.Tasks[name] = task.record()

			logger.InfoContext(ctx, "Skipping task, a dependency did not succeed", "task", name)
			p.publish(ctx, logger, record.ID, events.TaskSkipped{
				BaseEvent: events.NewBaseEvent(events.TaskSkippedEvent, p.name, record.ID),
				TaskName:  name,
				Reason:    models.SkipReasonDependencyFailed,
			})

			continue
		}

		outcome := p.runTask(ctx, executor, task, execCtx)
		record.Tasks[name] = task.record()

		if !outcome.Succeeded() {
			record.Status = models.RunStatusFailed
			record.FailedTask = name

			p.publish(ctx, logger, record.ID, events.TaskFailed{
				BaseEvent: events.NewBaseEvent(events.TaskFailedEvent, p.name, record.ID),
				TaskName:  name,
				Record:    record.Tasks[name],
			})

			p.skipDownstream(ctx, logger, &record, order[i+1:])

			break
		}

		p.publish(ctx, logger, record.ID, events.TaskCompleted{
			BaseEvent: events.NewBaseEvent(events.TaskCompletedEvent, p.name, record.ID),
			TaskName:  name,
			Record:    record.Tasks[name],
		})
	}

	if record.Status == "" {
		record.Status = models.RunStatusSuccess
	}

	record.EndedAt = p.now()
	p.history.Append(record)

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(record.Status)))

	if record.FailedTask != "" {
		span.SetAttributes(attribute.String(otelhelper.FailedTaskKey, record.FailedTask))
		span.SetStatus(codes.Error, "task "+record.FailedTask+" failed")
		logger.ErrorContext(ctx, "Pipeline execution failed", "failed_task", record.FailedTask, "error", record.Tasks[record.FailedTask].Error)
	} else {
		logger.InfoContext(ctx, "Pipeline execution completed", "duration", record.Duration())
	}

	p.publish(ctx, logger, record.ID, events.RunFinished{
		BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, p.name, record.ID),
		Record:    record.Clone(),
	})

	return &record, nil
}

func (p *Pipeline) runTask(ctx context.Context, executor *Executor, task *Task, execCtx models.ExecutionContext) Outcome {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "pipeline.task",
		attribute.String(otelhelper.TaskNameKey, task.name),
	)
	defer span.End()

	outcome := executor.Run(ctx, task, execCtx)

	span.SetAttributes(
		attribute.String(otelhelper.TaskStatusKey, string(task.status)),
		attribute.Int(otelhelper.TaskAttemptsKey, outcome.Attempts),
	)

	if outcome.Err != nil {
		otelhelper.SetError(span, outcome.Err, attribute.String(otelhelper.TaskNameKey, task.name))
	}

	return outcome
}

// skipDownstream marks the remaining tasks that can no longer run because a
// dependency failed or was skipped. Unrelated tasks stay Pending and out of the record.
func (p *Pipeline) skipDownstream(ctx context.Context, logger *slog.Logger, record *models.ExecutionRecord, remaining []string) {
	for _, name := range remaining {
		task := p.index[name]
		if !p.dependencyBlocked(task) {
			continue
		}

		task.skip()
		record.Tasks[name] = task.record()

		logger.InfoContext(ctx, "Skipping task downstream of failure", "task", name)
		p.publish(ctx, logger, record.ID, events.TaskSkipped{
			BaseEvent: events.NewBaseEvent(events.TaskSkippedEvent, p.name, record.ID),
			TaskName:  name,
			Reason:    models.SkipReasonDependencyFailed,
		})
	}
}

func (p *Pipeline) dependencyBlocked(task *Task) bool {
	for _, dep := range task.dependsOn {
		switch p.index[dep].status {
		case models.TaskStatusFailed, models.TaskStatusSkipped:
			return true
		}
	}

	return false
}

// dependenciesSucceeded reports whether every dependency of task reached Success.
// Dependencies always precede task in the order, so their status is final.
func (p *Pipeline) dependenciesSucceeded(task *Task) bool {
	for _, dep := range task.dependsOn {
		if p.index[dep].status != models.TaskStatusSuccess {
			return false
		}
	}

	return true
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if p.publisher == nil {
		return
	}

	if err := p.publisher.Publish(ctx, key, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish pipeline event", "event_type", event.GetType(), "error", err)
	}
}
