// Package definition builds pipelines from declarative YAML or JSON files.
package definition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/pipeline"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// ValidationError lists the field violations reported by the validator.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the definition at path.
func Load(path string) (*models.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline definition: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return def, nil
}

// Parse decodes a YAML or JSON definition and validates its structure. Dependency
// consistency is not checked here; it is reported when the order is computed.
func Parse(data []byte) (*models.PipelineDefinition, error) {
	var def models.PipelineDefinition

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate checks the struct tags of def.
func Validate(def *models.PipelineDefinition) error {
	err := validate.Struct(def)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	problems := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}

	return &ValidationError{Source: def.Name, Problems: problems}
}

// Build creates the pipeline described by def with bodies from reg and returns it
// with a fresh copy of the definition's initial context. opts are applied before
// the definition's own defaults.
func Build(ctx context.Context, def *models.PipelineDefinition, reg *registry.Registry, opts ...pipeline.Option) (*pipeline.Pipeline, models.ExecutionContext, error) {
	p := pipeline.New(def.Name, slices.Concat(opts, defaultOptions(def.Defaults))...)

	for _, td := range def.Tasks {
		body, err := reg.Create(ctx, td.Type, td.Name, td.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline %q: %w", def.Name, err)
		}

		p.AddTask(td.Name, body, taskOptions(td)...)
	}

	return p, models.NewExecutionContext(def.Context), nil
}

func defaultOptions(d models.TaskDefaults) []pipeline.Option {
	var opts []pipeline.Option

	if d.MaxRetries != nil {
		opts = append(opts, pipeline.WithDefaultMaxRetries(*d.MaxRetries))
	}

	if d.RetryDelay != nil {
		opts = append(opts, pipeline.WithDefaultRetryDelay(d.RetryDelay.Std()))
	}

	if d.Timeout != nil {
		opts = append(opts, pipeline.WithDefaultTimeout(d.Timeout.Std()))
	}

	return opts
}

func taskOptions(td *models.TaskDefinition) []pipeline.TaskOption {
	opts := []pipeline.TaskOption{pipeline.DependsOn(td.DependsOn...)}

	if td.MaxRetries != nil {
		opts = append(opts, pipeline.MaxRetries(*td.MaxRetries))
	}

	if td.RetryDelay != nil {
		opts = append(opts, pipeline.RetryDelay(td.RetryDelay.Std()))
	}

	if td.Timeout != nil {
		opts = append(opts, pipeline.Timeout(td.Timeout.Std()))
	}

	return opts
}
