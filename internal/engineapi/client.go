package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout — ограничение одного вызова engine'а.
const defaultTimeout = 10 * time.Second

// authHeader — заголовок с API-ключом engine'а.
const authHeader = "X-Engine-Api-Key"

// Node — узел workflow-документа engine'а.
type Node struct {
	// Name — имя узла внутри workflow.
	Name string `json:"name"`

	// Type — тип узла (идентификатор возможности engine'а).
	Type string `json:"type"`

	// Parameters — параметры узла.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// WorkflowDefinition — документ workflow для engine'а.
type WorkflowDefinition struct {
	// Name — имя workflow (с префиксом tenant'а).
	Name string `json:"name"`

	// Tags — метки workflow; среди них "slot:<id>" и "tenant:<id>".
	Tags []string `json:"tags,omitempty"`

	// Nodes — узлы в порядке выполнения.
	Nodes []Node `json:"nodes"`

	// Connections — связи между узлами: имя → имена следующих.
	Connections map[string][]string `json:"connections,omitempty"`
}

// EngineWorkflow — запись о workflow, как её видит engine.
type EngineWorkflow struct {
	// ID — идентификатор, присвоенный engine'ом.
	ID string `json:"id"`

	// Name — имя workflow.
	Name string `json:"name"`

	// Active — активирован ли workflow.
	Active bool `json:"active"`

	// Tags — метки workflow.
	Tags []string `json:"tags,omitempty"`
}

// SlotTag формирует метку слота для workflow.
func SlotTag(slotID string) string {
	return "slot:" + slotID
}

// TenantTag формирует метку tenant'а для workflow.
func TenantTag(tenantID string) string {
	return "tenant:" + tenantID
}

// TenantFromTags извлекает tenant из меток workflow.
// Возвращает пустую строку, если метки tenant нет.
func TenantFromTags(tags []string) string {
	for _, tag := range tags {
		if after, ok := strings.CutPrefix(tag, "tenant:"); ok {
			return after
		}
	}
	return ""
}

// Client — HTTP-клиент execution engine'а.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// Config — конфигурация клиента.
type Config struct {
	// BaseURL — адрес engine'а.
	BaseURL string

	// APIKey — API-ключ.
	APIKey string

	// Timeout — таймаут одного вызова (default: 10s).
	Timeout time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// NewClient создаёт клиент engine'а.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CreateWorkflow создаёт workflow в engine.
// Возвращает engine-assigned id.
func (c *Client) CreateWorkflow(ctx context.Context, def *WorkflowDefinition) (string, error) {
	var created EngineWorkflow
	if err := c.do(ctx, http.MethodPost, "/api/v1/workflows", def, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// ActivateWorkflow активирует workflow.
func (c *Client) ActivateWorkflow(ctx context.Context, engineID string) error {
	path := "/api/v1/workflows/" + url.PathEscape(engineID) + "/activate"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DeactivateWorkflow деактивирует workflow.
func (c *Client) DeactivateWorkflow(ctx context.Context, engineID string) error {
	path := "/api/v1/workflows/" + url.PathEscape(engineID) + "/deactivate"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DeleteWorkflow удаляет workflow из engine.
func (c *Client) DeleteWorkflow(ctx context.Context, engineID string) error {
	path := "/api/v1/workflows/" + url.PathEscape(engineID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		// Уже удалён — цель достигнута.
		return nil
	}
	return err
}

// ListWorkflowsByTag возвращает workflows engine'а с указанной меткой.
// Аллокатор использует это для проверки residual-ресурсов слота (L2).
func (c *Client) ListWorkflowsByTag(ctx context.Context, tag string) ([]EngineWorkflow, error) {
	path := "/api/v1/workflows?tag=" + url.QueryEscape(tag)

	var result struct {
		Data []EngineWorkflow `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// do выполняет запрос и классифицирует ошибки.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(authHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Таймауты и сетевые сбои — transient.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrTransient, resp.StatusCode, truncate(respBody, 200))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, truncate(respBody, 200))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// truncate обрезает тело ответа для сообщения об ошибке.
func truncate(b []byte, maxLen int) string {
	s := string(b)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
