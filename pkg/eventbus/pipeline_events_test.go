package eventbus_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/taskflow/pkg/channels/gochannel"
	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineEventsOverWatermill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	var (
		mu       sync.Mutex
		received []events.EventType
		finished *events.RunFinished
	)

	collect := func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()

		e, ok := event.(eventbus.Event)
		if !ok {
			return errors.New("unexpected payload")
		}

		received = append(received, e.GetType())
		if f, ok := event.(*events.RunFinished); ok {
			finished = f
		}

		return nil
	}

	for _, eventType := range []events.EventType{
		events.RunStartedEvent,
		events.TaskCompletedEvent,
		events.TaskFailedEvent,
		events.TaskSkippedEvent,
		events.RunFinishedEvent,
	} {
		require.NoError(t, bus.Handle(eventType, collect))
	}

	require.NoError(t, bus.Subscribe(ctx))

	p := pipeline.New("etl",
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pipeline.WithPublisher(bus),
		pipeline.WithDefaultMaxRetries(0),
	).
		AddTaskFunc("extract", func(context.Context, models.ExecutionContext) (any, error) { return nil, nil }).
		AddTaskFunc("transform", func(context.Context, models.ExecutionContext) (any, error) {
			return nil, errors.New("bad rows")
		}, pipeline.DependsOn("extract")).
		AddTaskFunc("load", func(context.Context, models.ExecutionContext) (any, error) { return nil, nil }, pipeline.DependsOn("transform"))

	record, err := p.Execute(ctx, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return finished != nil
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.TaskCompletedEvent,
		events.TaskFailedEvent,
		events.TaskSkippedEvent,
		events.RunFinishedEvent,
	}, received)
	assert.Equal(t, record.ID, finished.ExecutionID)
	assert.Equal(t, "transform", finished.Record.FailedTask)
	assert.Equal(t, models.TaskStatusSkipped, finished.Record.Tasks["load"].Status)
}
