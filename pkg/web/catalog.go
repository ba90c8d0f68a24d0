package web

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/pipeline"
)

var (
	ErrPipelineNotFound = errors.New("pipeline not found")
	ErrPipelineExists   = errors.New("pipeline already registered")
)

// Catalog hosts named pipelines and serialises every access to each of them.
type Catalog struct {
	mu        sync.RWMutex
	pipelines map[string]*hosted
}

type hosted struct {
	mu          sync.Mutex
	pipeline    *pipeline.Pipeline
	description string
	initial     models.ExecutionContext
}

func NewCatalog() *Catalog {
	return &Catalog{pipelines: make(map[string]*hosted)}
}

// Add hosts p. initial seeds the execution context of every run.
func (c *Catalog) Add(p *pipeline.Pipeline, description string, initial models.ExecutionContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pipelines[p.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrPipelineExists, p.Name())
	}

	c.pipelines[p.Name()] = &hosted{pipeline: p, description: description, initial: initial}

	return nil
}

// Names returns the hosted pipeline names in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Sorted(maps.Keys(c.pipelines))
}

func (c *Catalog) get(name string) (*hosted, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, name)
	}

	return h, nil
}

// with runs fn while holding the pipeline's lock.
func (c *Catalog) with(name string, fn func(h *hosted) error) error {
	h, err := c.get(name)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return fn(h)
}

// Status returns the inspection view of name.
func (c *Catalog) Status(name string) (models.PipelineStatus, error) {
	var status models.PipelineStatus

	err := c.with(name, func(h *hosted) error {
		status = h.pipeline.Status()

		return nil
	})

	return status, err
}

// Order returns the execution order of name.
func (c *Catalog) Order(name string) ([]string, error) {
	var order []string

	err := c.with(name, func(h *hosted) error {
		var err error
		order, err = h.pipeline.ExecutionOrder()

		return err
	})

	return order, err
}

// History returns every stored record of name, oldest first.
func (c *Catalog) History(name string) ([]models.ExecutionRecord, error) {
	var records []models.ExecutionRecord

	err := c.with(name, func(h *hosted) error {
		records = h.pipeline.History().All()

		return nil
	})

	return records, err
}

// Execute runs name once with the initial context overlaid by overrides.
func (c *Catalog) Execute(ctx context.Context, name string, overrides map[string]any) (*models.ExecutionRecord, error) {
	var record *models.ExecutionRecord

	err := c.with(name, func(h *hosted) error {
		execCtx := models.NewExecutionContext(h.initial)
		for k, v := range overrides {
			execCtx.Set(k, v)
		}

		var err error
		record, err = h.pipeline.Execute(ctx, execCtx)

		return err
	})

	return record, err
}

// Summary describes one hosted pipeline in listings.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TotalTasks  int      `json:"total_tasks"`
	Runs        int      `json:"runs"`
	LastStatus  string   `json:"last_status,omitempty"`
	Tasks       []string `json:"tasks"`
}

// Summaries lists every hosted pipeline in name order.
func (c *Catalog) Summaries() []Summary {
	names := c.Names()
	out := make([]Summary, 0, len(names))

	for _, name := range names {
		_ = c.with(name, func(h *hosted) error {
			s := Summary{
				Name:        name,
				Description: h.description,
				TotalTasks:  len(h.pipeline.Tasks()),
				Runs:        h.pipeline.History().Len(),
				Tasks:       make([]string, 0, len(h.pipeline.Tasks())),
			}

			for _, t := range h.pipeline.Tasks() {
				s.Tasks = append(s.Tasks, t.Name())
			}

			if last, ok := h.pipeline.History().Last(); ok {
				s.LastStatus = string(last.Status)
			}

			out = append(out, s)

			return nil
		})
	}

	return out
}
