// Package registry maps task body types to the factories that build them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"

	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// PluginSymbol is the exported symbol a body plugin must provide.
const PluginSymbol = "TaskBody"

var (
	ErrUnknownBodyType = errors.New("task body type not registered")
	ErrInvalidConfig   = errors.New("invalid task body configuration")
)

// ConfigError lists the schema violations of one task's configuration.
type ConfigError struct {
	Type     string
	Task     string
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("task %q (%s): invalid configuration: %s", e.Task, e.Type, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.TaskBodyFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[string]protocol.TaskBodyFactory),
	}
}

// Register adds factory under its ID, replacing any previous factory with the same ID.
func (r *Registry) Register(factory protocol.TaskBodyFactory) {
	r.factories[factory.ID()] = factory
}

// Get returns the factory registered for bodyType.
func (r *Registry) Get(bodyType string) (protocol.TaskBodyFactory, bool) {
	f, ok := r.factories[bodyType]

	return f, ok
}

// Factories returns every registered factory sorted by ID.
func (r *Registry) Factories() []protocol.TaskBodyFactory {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	out := make([]protocol.TaskBodyFactory, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.factories[id])
	}

	return out
}

// Create validates config against the factory schema and builds the body.
func (r *Registry) Create(ctx context.Context, bodyType, taskName string, config map[string]any) (protocol.TaskBody, error) {
	factory, ok := r.factories[bodyType]
	if !ok {
		return nil, fmt.Errorf("task %q: %w: %s", taskName, ErrUnknownBodyType, bodyType)
	}

	if config == nil {
		config = map[string]any{}
	}

	problems, err := ValidateConfig(factory.Schema(), config)
	if err != nil {
		return nil, fmt.Errorf("task %q: validating %s configuration: %w", taskName, bodyType, err)
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Type: bodyType, Task: taskName, Problems: problems}
	}

	body, err := factory.Create(ctx, taskName, config)
	if err != nil {
		return nil, fmt.Errorf("task %q: creating %s body: %w", taskName, bodyType, err)
	}

	return body, nil
}

// ValidateConfig checks config against a JSON schema and returns one line per violation.
// A nil schema accepts anything.
func ValidateConfig(schema map[string]any, config map[string]any) ([]string, error) {
	if schema == nil {
		return nil, nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return problems, nil
}

// LoadPlugins opens every *.so below pluginsPath and registers the factory each exports as PluginSymbol.
func (r *Registry) LoadPlugins(pluginsPath string) error {
	factories, err := loadPlugin[protocol.TaskBodyFactory](r.logger, pluginsPath, PluginSymbol)
	if err != nil {
		return err
	}

	for _, f := range factories {
		r.Register(f)
	}

	return nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	root := os.DirFS(pluginsPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("symbol", symbolName))
	l.Info("Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))
	for _, p := range pluginPathList {
		plg, err := plugin.Open(pluginsPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("opening plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		castV, ok := v.(T)
		if !ok {
			if ptr, isPtr := v.(*T); isPtr {
				castV = *ptr
			} else {
				return nil, fmt.Errorf("plugin %s: symbol %s has type %T", p, symbolName, v)
			}
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
