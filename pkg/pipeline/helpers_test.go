package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleeper counts waits instead of blocking.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = append(s.waits, d)
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.waits...)
}

// stepClock advances one second on every call.
func stepClock() func() time.Time {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	return func() time.Time {
		current = current.Add(time.Second)

		return current
	}
}

// countingBody fails its first failures invocations, then succeeds.
type countingBody struct {
	failures int
	calls    int
}

func (b *countingBody) Invoke(_ context.Context, _ models.ExecutionContext) (any, error) {
	b.calls++
	if b.calls <= b.failures {
		return nil, fmt.Errorf("attempt %d: %w", b.calls, errBoom)
	}

	return b.calls, nil
}

func succeed() protocol.TaskBodyFunc {
	return func(context.Context, models.ExecutionContext) (any, error) {
		return "ok", nil
	}
}

func alwaysFail() protocol.TaskBodyFunc {
	return func(context.Context, models.ExecutionContext) (any, error) {
		return nil, errBoom
	}
}

// newTestPipeline uses no retries by default and never sleeps.
func newTestPipeline(name string, sleeper Sleeper, opts ...Option) *Pipeline {
	base := []Option{
		WithLogger(discardLogger()),
		WithSleeper(sleeper),
		WithClock(stepClock()),
		WithDefaultMaxRetries(0),
		WithDefaultRetryDelay(time.Second),
	}

	return New(name, append(base, opts...)...)
}
