package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoFactory struct {
	id        string
	createErr error
}

func (f *echoFactory) Create(_ context.Context, taskName string, config map[string]any) (protocol.TaskBody, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}

	return protocol.TaskBodyFunc(func(context.Context, models.ExecutionContext) (any, error) {
		return taskName + ":" + config["word"].(string), nil
	}), nil
}

func (f *echoFactory) ID() string          { return f.id }
func (f *echoFactory) Name() string        { return "Echo" }
func (f *echoFactory) Description() string { return "Returns its configured word." }

func (f *echoFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"word": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"word"},
		"additionalProperties": false,
	}
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_Create(t *testing.T) {
	r := newTestRegistry()
	r.Register(&echoFactory{id: "echo"})

	body, err := r.Create(context.Background(), "echo", "greet", map[string]any{"word": "hello"})
	require.NoError(t, err)

	result, err := body.Invoke(context.Background(), models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "greet:hello", result)
}

func TestRegistry_CreateErrors(t *testing.T) {
	createErr := errors.New("no backend")

	tests := []struct {
		name     string
		bodyType string
		config   map[string]any
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unknown type",
			bodyType: "missing",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnknownBodyType)
				assert.Contains(t, err.Error(), "missing")
			},
		},
		{
			name:     "missing required property",
			bodyType: "echo",
			config:   nil,
			check: func(t *testing.T, err error) {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "echo", cfgErr.Type)
				assert.Equal(t, "task", cfgErr.Task)
				require.Len(t, cfgErr.Problems, 1)
				assert.Contains(t, cfgErr.Problems[0], "word")
				assert.ErrorIs(t, err, ErrInvalidConfig)
			},
		},
		{
			name:     "wrong type and extra property",
			bodyType: "echo",
			config:   map[string]any{"word": 3, "extra": true},
			check: func(t *testing.T, err error) {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Len(t, cfgErr.Problems, 2)
			},
		},
		{
			name:     "factory error",
			bodyType: "broken",
			config:   map[string]any{"word": "x"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, createErr)
				assert.NotErrorIs(t, err, ErrInvalidConfig)
			},
		},
	}

	r := newTestRegistry()
	r.Register(&echoFactory{id: "echo"})
	r.Register(&echoFactory{id: "broken", createErr: createErr})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := r.Create(context.Background(), tt.bodyType, "task", tt.config)
			require.Error(t, err)
			assert.Nil(t, body)
			tt.check(t, err)
		})
	}
}

func TestRegistry_Factories(t *testing.T) {
	r := newTestRegistry()
	r.Register(&echoFactory{id: "zeta"})
	r.Register(&echoFactory{id: "alpha"})
	r.Register(&echoFactory{id: "alpha"})

	ids := make([]string, 0)
	for _, f := range r.Factories() {
		ids = append(ids, f.ID())
	}

	assert.Equal(t, []string{"alpha", "zeta"}, ids)

	_, ok := r.Get("zeta")
	assert.True(t, ok)

	_, ok = r.Get("beta")
	assert.False(t, ok)
}

func TestValidateConfig_NilSchema(t *testing.T) {
	problems, err := ValidateConfig(nil, map[string]any{"anything": 1})
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestRegistry_LoadPlugins_EmptyDir(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.LoadPlugins(t.TempDir()))
	assert.Empty(t, r.Factories())
}
