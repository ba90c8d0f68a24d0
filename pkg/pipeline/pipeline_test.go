package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/mocks"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newETL(extract, transform, load *countingBody, sleeper Sleeper, opts ...Option) *Pipeline {
	return newTestPipeline("etl", sleeper, opts...).
		AddTask("extract", extract).
		AddTask("transform", transform, DependsOn("extract")).
		AddTask("load", load, DependsOn("transform"))
}

func TestPipeline_Execute_Success(t *testing.T) {
	extract, transform, load := &countingBody{}, &countingBody{}, &countingBody{}
	p := newETL(extract, transform, load, &recordingSleeper{}, WithIDGenerator(func() string { return "exec-fixed" }))

	record, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "exec-fixed", record.ID)
	assert.Equal(t, 1, record.Sequence)
	assert.Equal(t, "etl", record.PipelineName)
	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.True(t, record.Succeeded())
	assert.Empty(t, record.FailedTask)
	assert.Equal(t, []string{"extract", "transform", "load"}, record.Order)
	assert.True(t, record.EndedAt.After(record.StartedAt))

	require.Len(t, record.Tasks, 3)
	for _, name := range record.Order {
		entry := record.Tasks[name]
		assert.Equal(t, models.TaskStatusSuccess, entry.Status, name)
		require.NotNil(t, entry.StartedAt, name)
		require.NotNil(t, entry.EndedAt, name)
		require.NotNil(t, entry.DurationSeconds, name)
		assert.Positive(t, *entry.DurationSeconds, name)
		assert.Equal(t, 1, entry.Attempts, name)
		assert.Empty(t, entry.Error, name)
	}

	assert.Equal(t, 1, extract.calls)
	assert.Equal(t, 1, transform.calls)
	assert.Equal(t, 1, load.calls)
}

func TestPipeline_Execute_FirstTaskFails(t *testing.T) {
	sleeper := &recordingSleeper{}
	extract, transform, load := &countingBody{failures: 100}, &countingBody{}, &countingBody{}
	p := newETL(extract, transform, load, sleeper)

	record, err := p.Execute(context.Background(), models.ExecutionContext{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, "extract", record.FailedTask)
	assert.Equal(t, models.TaskStatusFailed, record.Tasks["extract"].Status)
	assert.Contains(t, record.Tasks["extract"].Error, "boom")
	assert.NotNil(t, record.Tasks["extract"].DurationSeconds)

	for _, name := range []string{"transform", "load"} {
		task, _ := p.Task(name)
		assert.Equal(t, models.TaskStatusSkipped, task.Status(), name)
		assert.Equal(t, models.TaskStatusSkipped, record.Tasks[name].Status, name)
		assert.Equal(t, models.SkipReasonDependencyFailed, record.Tasks[name].Reason, name)
		assert.Nil(t, record.Tasks[name].StartedAt, name)
	}

	assert.Equal(t, 0, transform.calls)
	assert.Equal(t, 0, load.calls)
	assert.Empty(t, sleeper.Waits(), "default retries are disabled in tests")
}

func TestPipeline_Execute_MiddleTaskFails(t *testing.T) {
	extract, transform, load := &countingBody{}, &countingBody{failures: 100}, &countingBody{}
	p := newETL(extract, transform, load, &recordingSleeper{})

	record, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, "transform", record.FailedTask)
	assert.Equal(t, models.TaskStatusSuccess, record.Tasks["extract"].Status)
	assert.Equal(t, models.TaskStatusFailed, record.Tasks["transform"].Status)
	assert.Equal(t, models.TaskStatusSkipped, record.Tasks["load"].Status)
	assert.Equal(t, 0, load.calls)
}

func TestPipeline_Execute_FailFastLeavesIndependentTasksPending(t *testing.T) {
	second := &countingBody{}
	p := newTestPipeline("independent", &recordingSleeper{}).
		AddTask("first", alwaysFail()).
		AddTask("second", second)

	record, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "first", record.FailedTask)
	assert.Equal(t, 0, second.calls)

	task, _ := p.Task("second")
	assert.Equal(t, models.TaskStatusPending, task.Status())
	assert.NotContains(t, record.Tasks, "second")
	assert.Equal(t, []string{"first", "second"}, record.Order)
}

func TestPipeline_Execute_RetryPolicyPerTask(t *testing.T) {
	sleeper := &recordingSleeper{}
	flaky := &countingBody{failures: 2}
	p := newTestPipeline("retries", sleeper).
		AddTask("flaky", flaky, MaxRetries(2), RetryDelay(3*time.Second))

	record, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.Equal(t, models.TaskStatusSuccess, record.Tasks["flaky"].Status)
	assert.Equal(t, 3, record.Tasks["flaky"].Attempts)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeper.Waits())
}

func TestPipeline_Execute_SkipsTransitiveDependentsOnly(t *testing.T) {
	q := newTestPipeline("branch", &recordingSleeper{}).
		AddTask("ok", succeed()).
		AddTask("bad", alwaysFail()).
		AddTask("after-bad", succeed(), DependsOn("bad")).
		AddTask("after-both", succeed(), DependsOn("ok", "after-bad")).
		AddTask("after-ok", succeed(), DependsOn("ok"))

	record := runOnce(t, q)
	assert.Equal(t, "bad", record.FailedTask)
	assert.Equal(t, models.TaskStatusSuccess, record.Tasks["ok"].Status)
	assert.Equal(t, models.TaskStatusSkipped, record.Tasks["after-bad"].Status)
	assert.Equal(t, models.TaskStatusSkipped, record.Tasks["after-both"].Status)
	assert.NotContains(t, record.Tasks, "after-ok")

	afterOK, _ := q.Task("after-ok")
	assert.Equal(t, models.TaskStatusPending, afterOK.Status())
}

func TestPipeline_Execute_ContextSharedAcrossTasks(t *testing.T) {
	p := newTestPipeline("context", &recordingSleeper{}).
		AddTaskFunc("produce", func(_ context.Context, c models.ExecutionContext) (any, error) {
			c.Set("rows", 42)

			return nil, nil
		}).
		AddTaskFunc("consume", func(_ context.Context, c models.ExecutionContext) (any, error) {
			rows, ok := c.Get("rows")
			if !ok {
				return nil, errors.New("rows missing")
			}

			c.Set("doubled", rows.(int)*2)

			return nil, nil
		}, DependsOn("produce"))

	execCtx := models.ExecutionContext{}
	record, err := p.Execute(context.Background(), execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.Equal(t, 84, execCtx["doubled"])
}

func TestPipeline_Execute_PreflightErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Pipeline)
		check func(t *testing.T, err error)
	}{
		{
			name: "cycle",
			build: func(p *Pipeline) {
				p.AddTask("a", succeed(), DependsOn("b")).AddTask("b", succeed(), DependsOn("a"))
			},
			check: func(t *testing.T, err error) {
				var cycleErr *CycleError
				assert.True(t, errors.As(err, &cycleErr))
			},
		},
		{
			name: "unknown dependency",
			build: func(p *Pipeline) {
				p.AddTask("a", succeed(), DependsOn("missing"))
			},
			check: func(t *testing.T, err error) {
				var cfgErr *ConfigurationError
				require.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, "missing", cfgErr.Dependency)
			},
		},
		{
			name: "duplicate task",
			build: func(p *Pipeline) {
				p.AddTask("a", succeed()).AddTask("a", succeed())
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsConfigurationError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &countingBody{}
			p := newTestPipeline("broken", &recordingSleeper{}).AddTask("untouched", body)
			tt.build(p)

			record, err := p.Execute(context.Background(), nil)

			require.Error(t, err)
			assert.Nil(t, record)
			assert.True(t, IsPreflightError(err))
			tt.check(t, err)

			assert.Equal(t, 0, body.calls)
			assert.Equal(t, 0, p.History().Len())

			untouched, _ := p.Task("untouched")
			assert.Equal(t, models.TaskStatusPending, untouched.Status())
		})
	}
}

func TestPipeline_Execute_RerunAppendsDistinctRecords(t *testing.T) {
	transform := &countingBody{failures: 1}
	p := newETL(&countingBody{}, transform, &countingBody{}, &recordingSleeper{})

	first := runOnce(t, p)
	require.Equal(t, models.RunStatusFailed, first.Status)
	require.Equal(t, 1, p.History().Len())

	second := runOnce(t, p)
	require.Equal(t, models.RunStatusSuccess, second.Status)
	require.Equal(t, 2, p.History().Len())

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)

	all := p.History().All()
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, models.RunStatusFailed, all[0].Status)
	assert.Equal(t, "transform", all[0].FailedTask)
	assert.Equal(t, models.TaskStatusSkipped, all[0].Tasks["load"].Status)
	assert.Equal(t, models.TaskStatusSuccess, all[1].Tasks["load"].Status)

	// Mutating a returned record does not reach stored history.
	second.Tasks["load"] = models.TaskRecord{Status: models.TaskStatusFailed}
	last, ok := p.History().Last()
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusSuccess, last.Tasks["load"].Status)
}

func TestPipeline_Execute_ResetsStatusBetweenRuns(t *testing.T) {
	fail := true
	p := newTestPipeline("reset", &recordingSleeper{}).
		AddTaskFunc("gate", func(context.Context, models.ExecutionContext) (any, error) {
			if fail {
				return nil, errBoom
			}

			return nil, nil
		}).
		AddTask("other", succeed())

	fail = false
	runOnce(t, p)

	other, _ := p.Task("other")
	require.Equal(t, models.TaskStatusSuccess, other.Status())

	fail = true
	record := runOnce(t, p)

	assert.Equal(t, "gate", record.FailedTask)
	assert.Equal(t, models.TaskStatusPending, other.Status())
	assert.NotContains(t, record.Tasks, "other")
}

func TestPipeline_Status(t *testing.T) {
	p := newETL(&countingBody{}, &countingBody{failures: 100}, &countingBody{}, &recordingSleeper{})

	status := p.Status()
	assert.Equal(t, "etl", status.PipelineName)
	assert.Equal(t, 3, status.TotalTasks)
	assert.Nil(t, status.LastExecution)
	assert.Equal(t, map[string]models.TaskStatus{
		"extract":   models.TaskStatusPending,
		"transform": models.TaskStatusPending,
		"load":      models.TaskStatusPending,
	}, status.TaskStatuses)

	record := runOnce(t, p)

	status = p.Status()
	require.NotNil(t, status.LastExecution)
	assert.Equal(t, record.ID, status.LastExecution.ID)
	assert.Equal(t, map[string]models.TaskStatus{
		"extract":   models.TaskStatusSuccess,
		"transform": models.TaskStatusFailed,
		"load":      models.TaskStatusSkipped,
	}, status.TaskStatuses)
	assert.Equal(t, []string{"extract", "load", "transform"}, status.TaskNames())
}

func TestPipeline_Status_DuplicateRegistration(t *testing.T) {
	p := newTestPipeline("dupes", &recordingSleeper{}).
		AddTask("extract", succeed()).
		AddTask("extract", alwaysFail()).
		AddTask("load", succeed())

	status := p.Status()
	assert.Equal(t, 3, status.TotalTasks)
	assert.Equal(t, map[string]models.TaskStatus{
		"extract": models.TaskStatusPending,
		"load":    models.TaskStatusPending,
	}, status.TaskStatuses)

	_, err := p.Execute(context.Background(), nil)
	assert.True(t, IsConfigurationError(err))
}

func TestPipeline_Execute_IDFromStartTime(t *testing.T) {
	p := newTestPipeline("ids", &recordingSleeper{}).AddTask("a", succeed())

	first := runOnce(t, p)
	second := runOnce(t, p)

	// stepClock starts the first run at 2024-01-01T00:00:01Z.
	assert.Regexp(t, `^exec-20240101T000001Z-[0-9a-f]{8}$`, first.ID)
	assert.Regexp(t, `^exec-20240101T0000\d\dZ-[0-9a-f]{8}$`, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.Sequence, second.Sequence)
}

func TestPipeline_Defaults(t *testing.T) {
	p := New("defaults", WithLogger(discardLogger())).AddTask("a", succeed())

	task, ok := p.Task("a")
	require.True(t, ok)
	assert.Equal(t, DefaultMaxRetries, task.MaxRetries())
	assert.Equal(t, DefaultRetryDelay, task.RetryDelay())
	assert.Equal(t, DefaultTimeout, task.Timeout())
	assert.Equal(t, 4, task.MaxAttempts())

	q := New("custom", WithLogger(discardLogger()), WithDefaultTimeout(time.Minute)).
		AddTask("b", succeed(), MaxRetries(-1), Timeout(5*time.Second))

	task, _ = q.Task("b")
	assert.Equal(t, 0, task.MaxRetries())
	assert.Equal(t, 5*time.Second, task.Timeout())
}

func TestPipeline_TaskDependencies(t *testing.T) {
	p := newTestPipeline("deps", &recordingSleeper{}).
		AddTask("a", succeed()).
		AddTask("b", succeed(), DependsOn("a")).
		AddTask("c", succeed(), DependsOn("a")).
		AddTask("d", succeed(), DependsOn("b", "c"))

	assert.Equal(t, []string{"b", "c", "a"}, p.TaskDependencies("d"))
	assert.Empty(t, p.TaskDependencies("a"))
	assert.Nil(t, p.TaskDependencies("unknown"))

	order, err := p.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestPipeline_ResetHistory(t *testing.T) {
	p := newTestPipeline("history", &recordingSleeper{}).AddTask("a", succeed())

	runOnce(t, p)
	runOnce(t, p)
	require.Equal(t, 2, p.History().Len())

	p.ResetHistory()
	_, ok := p.History().Last()
	assert.False(t, ok)
	assert.Empty(t, p.History().All())

	record := runOnce(t, p)
	assert.Equal(t, 3, record.Sequence)
	assert.Equal(t, 1, p.History().Len())
}

// memoryPublisher collects events in publish order.
type memoryPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
	err    error
}

func (m *memoryPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)

	return m.err
}

func (m *memoryPublisher) types() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]events.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.GetType())
	}

	return out
}

func TestPipeline_Execute_PublishesLifecycleEvents(t *testing.T) {
	publisher := &memoryPublisher{}
	p := newETL(&countingBody{}, &countingBody{failures: 5}, &countingBody{}, &recordingSleeper{}, WithPublisher(publisher))
	task, _ := p.Task("transform")
	MaxRetries(1)(task)

	record := runOnce(t, p)

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.TaskCompletedEvent,
		events.TaskRetryingEvent,
		events.TaskFailedEvent,
		events.TaskSkippedEvent,
		events.RunFinishedEvent,
	}, publisher.types())

	finished, ok := publisher.events[len(publisher.events)-1].(events.RunFinished)
	require.True(t, ok)
	assert.Equal(t, record.ID, finished.ExecutionID)
	assert.Equal(t, "transform", finished.Record.FailedTask)

	retrying, ok := publisher.events[2].(events.TaskRetrying)
	require.True(t, ok)
	assert.Equal(t, "transform", retrying.TaskName)
	assert.Equal(t, 1, retrying.Attempt)
	assert.Equal(t, 2, retrying.MaxAttempts)
}

func TestPipeline_Execute_PublishFailureDoesNotFailRun(t *testing.T) {
	publisher := &memoryPublisher{err: errors.New("bus down")}
	p := newTestPipeline("bus", &recordingSleeper{}, WithPublisher(publisher)).AddTask("a", succeed())

	record := runOnce(t, p)

	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.NotEmpty(t, publisher.types())
}

func TestPipeline_Execute_PublishesKeyedByExecutionID(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "exec-42", mock.AnythingOfType("events.RunStarted")).Return(nil).Once()
	bus.On("Publish", mock.Anything, "exec-42", mock.AnythingOfType("events.TaskCompleted")).Return(nil).Once()
	bus.On("Publish", mock.Anything, "exec-42", mock.AnythingOfType("events.RunFinished")).Return(nil).Once()

	p := newTestPipeline("keyed", &recordingSleeper{},
		WithPublisher(bus),
		WithIDGenerator(func() string { return "exec-42" }),
	).AddTask("a", succeed())

	runOnce(t, p)

	bus.AssertExpectations(t)
}

func TestPipeline_Execute_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	p := newTestPipeline("traced", &recordingSleeper{}, WithTracer(provider.Tracer("test"))).
		AddTask("ok", succeed()).
		AddTask("bad", alwaysFail())

	runOnce(t, p)

	names := make(map[string]int)
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}

	assert.Equal(t, 1, names["pipeline.execute"])
	assert.Equal(t, 2, names["pipeline.task"])
	assert.Equal(t, 2, names["pipeline.task.attempt"])
}

func runOnce(t *testing.T, p *Pipeline) *models.ExecutionRecord {
	t.Helper()

	record, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)

	return record
}
