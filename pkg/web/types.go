package web

import "github.com/dukex/taskflow/pkg/models"

// ExecuteRequest is the optional body of POST /pipelines/:name/execute.
type ExecuteRequest struct {
	Context map[string]any `json:"context" validate:"omitempty,dive,keys,min=1,endkeys"`
}

type OrderResponse struct {
	PipelineName string   `json:"pipeline_name"`
	Order        []string `json:"order"`
}

type HistoryResponse struct {
	PipelineName string                   `json:"pipeline_name"`
	Total        int                      `json:"total"`
	Executions   []models.ExecutionRecord `json:"executions"`
}

// BodyTypeResponse describes one registered task body type.
type BodyTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
