// Package web exposes hosted pipelines over HTTP: inspection, ordering, history and execution.
package web

import (
	"time"

	"github.com/dukex/taskflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	catalog   *Catalog
	validator *validator.Validate
	registry  *registry.Registry
}

func NewAPIHandlers(catalog *Catalog, validator *validator.Validate, registry *registry.Registry) *APIHandlers {
	return &APIHandlers{
		catalog:   catalog,
		validator: validator,
		registry:  registry,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	p := router.Group("/pipelines")
	p.Get("/", h.ListPipelines)
	p.Get("/:name", h.GetPipeline)
	p.Get("/:name/order", h.GetOrder)
	p.Get("/:name/history", h.GetHistory)
	p.Post("/:name/execute", h.ExecutePipeline)

	router.Get("/body-types", h.ListBodyTypes)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) ListPipelines(c fiber.Ctx) error {
	summaries := h.catalog.Summaries()

	return c.JSON(fiber.Map{
		"pipelines":   summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetPipeline(c fiber.Ctx) error {
	status, err := h.catalog.Status(c.Params("name"))
	if err != nil {
		return handlePipelineError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetOrder(c fiber.Ctx) error {
	name := c.Params("name")

	order, err := h.catalog.Order(name)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return c.JSON(OrderResponse{PipelineName: name, Order: order})
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	name := c.Params("name")

	records, err := h.catalog.History(name)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return c.JSON(HistoryResponse{PipelineName: name, Total: len(records), Executions: records})
}

// ExecutePipeline runs the pipeline synchronously. A run that fails still answers
// 200 with its record; only pre-flight errors are problems.
func (h *APIHandlers) ExecutePipeline(c fiber.Ctx) error {
	var req ExecuteRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	record, err := h.catalog.Execute(c.Context(), c.Params("name"), req.Context)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ListBodyTypes(c fiber.Ctx) error {
	factories := h.registry.Factories()

	out := make([]BodyTypeResponse, 0, len(factories))
	for _, f := range factories {
		out = append(out, BodyTypeResponse{
			ID:          f.ID(),
			Name:        f.Name(),
			Description: f.Description(),
			Schema:      f.Schema(),
		})
	}

	return c.JSON(fiber.Map{"body_types": out})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"message":   "Taskflow API is healthy",
		"pipelines": len(h.catalog.Names()),
		"timestamp": time.Now().UTC(),
	})
}
