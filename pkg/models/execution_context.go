package models

// ExecutionContext is the shared mutable value handed to every task body of a run.
// Tasks run one at a time, so writes made by a task are visible to the tasks after it.
type ExecutionContext map[string]any

// NewExecutionContext returns a context seeded with a shallow copy of values.
func NewExecutionContext(values map[string]any) ExecutionContext {
	ctx := make(ExecutionContext, len(values))
	for k, v := range values {
		ctx[k] = v
	}

	return ctx
}

// Get returns the value stored under key.
func (c ExecutionContext) Get(key string) (any, bool) {
	v, ok := c[key]

	return v, ok
}

// Set stores value under key.
func (c ExecutionContext) Set(key string, value any) {
	c[key] = value
}
