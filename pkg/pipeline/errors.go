package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration indicates a duplicate task name or a dependency on an unknown task.
	ErrConfiguration = errors.New("invalid pipeline configuration")

	// ErrCycle indicates the dependency graph has no valid execution order.
	ErrCycle = errors.New("dependency cycle detected")

	// ErrTaskTimeout indicates an attempt outlived its timeout budget.
	ErrTaskTimeout = errors.New("task exceeded its timeout")
)

// ConfigurationError reports a declaration problem found while computing the execution order.
type ConfigurationError struct {
	Task       string // Task whose declaration is wrong
	Dependency string // Unknown dependency name, if that is the problem
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Dependency != "" {
		return fmt.Sprintf("%v: task %q %s %q", ErrConfiguration, e.Task, e.Reason, e.Dependency)
	}

	return fmt.Sprintf("%v: task %q %s", ErrConfiguration, e.Task, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// CycleError reports a dependency cycle. Cycle is one witness path that starts and
// ends with the same task, in dependency-to-dependent direction.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return ErrCycle.Error()
	}

	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// TaskExecutionError wraps the failure of one attempt of a task body.
type TaskExecutionError struct {
	Task    string
	Attempt int // zero-based
	Err     error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q failed on attempt %d: %v", e.Task, e.Attempt+1, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if err is a pre-flight configuration failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsCycleError checks if err reports a dependency cycle.
func IsCycleError(err error) bool {
	return errors.Is(err, ErrCycle)
}

// IsPreflightError checks if err was raised before any task ran.
func IsPreflightError(err error) bool {
	return IsConfigurationError(err) || IsCycleError(err)
}
