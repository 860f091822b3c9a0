package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// MessageResponse — результат обработки реплики.
type MessageResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Reply     string `json:"reply"`
}

// TurnResponse — реплика диалога.
type TurnResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SessionResponse — сессия из API.
type SessionResponse struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Phase     string         `json:"phase"`
	Scope     map[string]any `json:"scope"`
	Turns     []TurnResponse `json:"turns,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// SlotResponse — слот из API.
type SlotResponse struct {
	ID               string `json:"id"`
	ProjectNumber    int    `json:"project_number"`
	UserSlot         int    `json:"user_slot"`
	Status           string `json:"status"`
	AssignedTenantID string `json:"assigned_tenant_id,omitempty"`
	AssignedAt       string `json:"assigned_at,omitempty"`
}

// AuditEntryResponse — запись audit-журнала из API.
type AuditEntryResponse struct {
	ID        int64  `json:"id"`
	SlotID    string `json:"slot_id"`
	TenantID  string `json:"tenant_id,omitempty"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
	CreatedAt string `json:"created_at"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID               string `json:"id"`
	TenantID         string `json:"tenant_id"`
	SlotID           string `json:"slot_id"`
	Name             string `json:"name"`
	DeploymentStatus string `json:"deployment_status"`
	EngineWorkflowID string `json:"engine_workflow_id,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// --- Request types ---

// PostMessageRequest — реплика пользователя.
type PostMessageRequest struct {
	Message string `json:"message"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Concierge API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Sessions ---

// Say отправляет реплику в сессию tenant'а.
func (c *Client) Say(tenantID, sessionID, message string) (*MessageResponse, error) {
	var result MessageResponse
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) +
		"/sessions/" + url.PathEscape(sessionID) + "/messages"
	err := c.post(path, PostMessageRequest{Message: message}, &result)
	return &result, err
}

// ListSessions возвращает сессии tenant'а.
func (c *Client) ListSessions(tenantID string, limit int) ([]SessionResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var sessions []SessionResponse
	err := c.list("/api/v1/tenants/"+url.PathEscape(tenantID)+"/sessions", params, &sessions)
	return sessions, err
}

// GetSession возвращает сессию с историей реплик.
func (c *Client) GetSession(tenantID, sessionID string) (*SessionResponse, error) {
	var session SessionResponse
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) +
		"/sessions/" + url.PathEscape(sessionID)
	err := c.get(path, &session)
	return &session, err
}

// --- Slots ---

// ListSlots возвращает все слоты пула.
func (c *Client) ListSlots() ([]SlotResponse, error) {
	var slots []SlotResponse
	err := c.list("/api/v1/slots", nil, &slots)
	return slots, err
}

// GetSlot возвращает слот по ID.
func (c *Client) GetSlot(id string) (*SlotResponse, error) {
	var slot SlotResponse
	err := c.get("/api/v1/slots/"+url.PathEscape(id), &slot)
	return &slot, err
}

// ListAudit возвращает audit-журнал слота.
func (c *Client) ListAudit(slotID string, limit int) ([]AuditEntryResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var entries []AuditEntryResponse
	err := c.list("/api/v1/slots/"+url.PathEscape(slotID)+"/audit", params, &entries)
	return entries, err
}

// --- Workflows ---

// GetWorkflow возвращает workflow tenant'а.
func (c *Client) GetWorkflow(tenantID string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/tenants/"+url.PathEscape(tenantID)+"/workflow", &wf)
	return &wf, err
}

// TeardownWorkflow удаляет workflow tenant'а и освобождает слот.
func (c *Client) TeardownWorkflow(tenantID string) error {
	return c.delete("/api/v1/tenants/" + url.PathEscape(tenantID) + "/workflow")
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
