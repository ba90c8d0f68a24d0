package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineDefinition is the declarative form of a pipeline, loaded from YAML or JSON.
type PipelineDefinition struct {
	Name        string            `json:"name"              yaml:"name"              validate:"required,min=1"`
	Description string            `json:"description"       yaml:"description"`
	Defaults    TaskDefaults      `json:"defaults"          yaml:"defaults"`
	Context     map[string]any    `json:"context,omitempty" yaml:"context,omitempty"`
	Tasks       []*TaskDefinition `json:"tasks"             yaml:"tasks"             validate:"required,min=1,dive,required"`
}

// TaskDefaults overrides the engine-wide execution policy for every task of a definition.
type TaskDefaults struct {
	MaxRetries *int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,min=0"`
	RetryDelay *Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	Timeout    *Duration `json:"timeout,omitempty"     yaml:"timeout,omitempty"`
}

// TaskDefinition declares one task and the body that implements it.
type TaskDefinition struct {
	Name       string         `json:"name"                  yaml:"name"                  validate:"required,min=1"`
	Type       string         `json:"type"                  yaml:"type"                  validate:"required"`
	Config     map[string]any `json:"config,omitempty"      yaml:"config,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"  yaml:"depends_on,omitempty"  validate:"dive,required"`
	MaxRetries *int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,min=0"`
	RetryDelay *Duration      `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	Timeout    *Duration      `json:"timeout,omitempty"     yaml:"timeout,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("1m30s") in definition files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	return d.Parse(raw)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	return d.Parse(raw)
}

// maxDurationSeconds is the largest whole number of seconds a time.Duration holds.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Parse accepts a duration string or a number of seconds.
func (d *Duration) Parse(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}

		if parsed < 0 {
			return fmt.Errorf("invalid duration %q: must not be negative", v)
		}

		*d = Duration(parsed)
	case int:
		if v < 0 {
			return fmt.Errorf("invalid duration %d: must not be negative", v)
		}

		if int64(v) > maxDurationSeconds {
			return fmt.Errorf("invalid duration %d: exceeds %d seconds", v, maxDurationSeconds)
		}

		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		if v < 0 {
			return fmt.Errorf("invalid duration %v: must not be negative", v)
		}

		if v > float64(maxDurationSeconds) {
			return fmt.Errorf("invalid duration %v: exceeds %d seconds", v, maxDurationSeconds)
		}

		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}

	return nil
}
