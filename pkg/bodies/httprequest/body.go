// Package httprequest provides a task body that performs an HTTP request.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/template"
)

const ID = "http_request"

var (
	// ErrUnexpectedStatus is returned when the response status is not accepted.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrURLInvalid is returned when the rendered URL is empty.
	ErrURLInvalid = errors.New("invalid HTTP request url")
)

// Factory creates HTTP request bodies sharing one client.
type Factory struct {
	client *http.Client
	logger *slog.Logger
}

// NewFactory creates a factory. A nil client uses http.DefaultClient.
func NewFactory(client *http.Client, logger *slog.Logger) *Factory {
	if client == nil {
		client = http.DefaultClient
	}

	return &Factory{client: client, logger: logger}
}

func (f *Factory) Create(_ context.Context, taskName string, config map[string]any) (protocol.TaskBody, error) {
	url, _ := config["url"].(string)
	method, _ := config["method"].(string)
	body, _ := config["body"].(string)
	resultKey, _ := config["result_key"].(string)

	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)
	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	var expected []int
	if raw, ok := config["expected_status"].([]any); ok {
		for _, v := range raw {
			switch n := v.(type) {
			case int:
				expected = append(expected, n)
			case float64:
				expected = append(expected, int(n))
			}
		}
	}

	return &Body{
		task:      taskName,
		method:    strings.ToUpper(method),
		url:       url,
		headers:   headers,
		body:      body,
		expected:  expected,
		resultKey: resultKey,
		client:    f.client,
		logger:    f.logger.With("task", taskName, "body", ID),
	}, nil
}

func (*Factory) ID() string { return ID }

func (*Factory) Name() string { return "HTTP Request" }

func (*Factory) Description() string {
	return "Performs an HTTP request and fails when the response status is not expected."
}

func (*Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the request to. Supports templating with the execution context.",
				"minLength":   1,
				"examples": []string{
					"https://api.example.com/exports",
					"{{ .ctx.api }}/exports/{{ .ctx.date }}",
				},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"expected_status": map[string]any{
				"type":        "array",
				"description": "Accepted response codes. Any 2xx is accepted when empty.",
				"items": map[string]any{
					"type":    "integer",
					"minimum": 100,
					"maximum": 599,
				},
			},
			"result_key": map[string]any{
				"type":        "string",
				"description": "Execution context key that receives the response status code.",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

// Body sends one request per invocation. The request carries the attempt context,
// so the task timeout cancels it.
type Body struct {
	task      string
	method    string
	url       string
	headers   map[string]string
	body      string
	expected  []int
	resultKey string
	client    *http.Client
	logger    *slog.Logger
}

func (b *Body) Invoke(ctx context.Context, execCtx models.ExecutionContext) (any, error) {
	req, err := b.buildRequest(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	b.logger.DebugContext(ctx, "Sending HTTP request", "method", b.method, "url", req.URL.String())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !b.accepts(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, b.method, req.URL, resp.StatusCode)
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	if b.resultKey != "" {
		execCtx.Set(b.resultKey, resp.StatusCode)
	}

	b.logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}, nil
}

func (b *Body) accepts(status int) bool {
	if len(b.expected) == 0 {
		return status >= 200 && status < 300
	}

	return slices.Contains(b.expected, status)
}

func (b *Body) buildRequest(ctx context.Context, execCtx models.ExecutionContext) (*http.Request, error) {
	data := template.Data(b.task, execCtx)

	url, err := template.RenderString(b.url, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrURLInvalid
	}

	var bodyReader io.Reader
	if b.body != "" {
		rendered, err := template.RenderString(b.body, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		bodyReader = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, b.method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range b.headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}
