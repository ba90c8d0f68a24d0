package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sleeper blocks between attempts. The wait is not cancellable.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(d time.Duration)

func (f SleeperFunc) Sleep(d time.Duration) { f(d) }

// Outcome is the typed result of running one task.
type Outcome struct {
	Result   any
	Err      error // *TaskExecutionError of the last attempt, nil on success
	Attempts int
}

// Succeeded reports whether the task body eventually returned without failure.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// RetryFunc is notified after a failed attempt that will be retried.
type RetryFunc func(ctx context.Context, task *Task, attempt int, err error)

// Executor runs a single task body with fixed-delay retries and a per-attempt
// timeout budget.
type Executor struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	sleeper Sleeper
	now     func() time.Time
	onRetry RetryFunc
}

func NewExecutor(logger *slog.Logger, tracer trace.Tracer, sleeper Sleeper, now func() time.Time) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	if sleeper == nil {
		sleeper = SleeperFunc(time.Sleep)
	}

	if now == nil {
		now = time.Now
	}

	if tracer == nil {
		tracer = otelhelper.DefaultTracer()
	}

	return &Executor{
		logger:  logger,
		tracer:  tracer,
		sleeper: sleeper,
		now:     now,
	}
}

// Run moves task through Running to Success or Failed.
//
// Attempts are numbered 0..MaxRetries. A failed attempt that is not the last one is
// followed by a wait of RetryDelay. Only the last error is kept on the task.
func (e *Executor) Run(ctx context.Context, task *Task, execCtx models.ExecutionContext) Outcome {
	logger := e.logger.With("task", task.name)

	task.start(e.now())

	var (
		result any
		err    error
	)

	for attempt := 0; attempt < task.MaxAttempts(); attempt++ {
		if attempt > 0 {
			logger.Info("Retrying task", "attempt", attempt+1, "max_attempts", task.MaxAttempts())
		}

		task.attempts = attempt + 1
		result, err = e.attempt(ctx, task, attempt, execCtx)

		if err == nil {
			break
		}

		if attempt < task.maxRetries {
			logger.Warn("Task attempt failed, waiting before retry",
				"attempt", attempt+1,
				"retry_delay", task.retryDelay,
				"error", err,
			)

			if e.onRetry != nil {
				e.onRetry(ctx, task, attempt, err)
			}

			e.sleeper.Sleep(task.retryDelay)

			continue
		}

		logger.Error("Task failed after all attempts", "attempts", attempt+1, "error", err)
	}

	task.finish(e.now(), result, err)

	return Outcome{Result: result, Err: err, Attempts: task.attempts}
}

// attempt invokes the body once. A body that is still running when its budget
// expires is waited for, then the attempt counts as timed out.
func (e *Executor) attempt(ctx context.Context, task *Task, attempt int, execCtx models.ExecutionContext) (result any, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "pipeline.task.attempt",
		attribute.String(otelhelper.TaskNameKey, task.name),
		attribute.Int(otelhelper.TaskAttemptsKey, attempt+1),
	)
	defer span.End()

	attemptCtx := ctx
	if task.timeout > 0 {
		var cancel context.CancelFunc

		attemptCtx, cancel = context.WithTimeout(ctx, task.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &TaskExecutionError{Task: task.name, Attempt: attempt, Err: fmt.Errorf("panic: %v", r)}
		}

		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.TaskNameKey, task.name))
		}
	}()

	result, err = task.body.Invoke(attemptCtx, execCtx)

	if task.timeout > 0 && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", ErrTaskTimeout, task.timeout)
	}

	if err != nil {
		return nil, &TaskExecutionError{Task: task.name, Attempt: attempt, Err: err}
	}

	return result, nil
}
