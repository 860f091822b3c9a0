package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Concierge/internal/domain"
)

// Session DTOs

// PostMessageRequest — реплика пользователя.
type PostMessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse — результат обработки реплики.
type MessageResponse struct {
	SessionID uuid.UUID    `json:"session_id"`
	Phase     domain.Phase `json:"phase"`

	// Reply — ответная реплика агента.
	Reply string `json:"reply"`
}

// TurnResponse — одна реплика диалога.
type TurnResponse struct {
	Role      domain.TurnRole `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// SessionResponse — ответ с сессией.
type SessionResponse struct {
	ID        uuid.UUID         `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Phase     domain.Phase      `json:"phase"`
	Scope     domain.ScopeDraft `json:"scope"`
	Turns     []TurnResponse    `json:"turns,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SessionFromDomain конвертирует domain.ConversationSession в SessionResponse.
func SessionFromDomain(s domain.ConversationSession) SessionResponse {
	turns := make([]TurnResponse, len(s.Turns))
	for i, t := range s.Turns {
		turns[i] = TurnResponse{Role: t.Role, Content: t.Content, Timestamp: t.Timestamp}
	}
	return SessionResponse{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Phase:     s.Phase,
		Scope:     s.Scope,
		Turns:     turns,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Slot DTOs

// SlotResponse — ответ со слотом.
type SlotResponse struct {
	ID               string            `json:"id"`
	ProjectNumber    int               `json:"project_number"`
	UserSlot         int               `json:"user_slot"`
	Status           domain.SlotStatus `json:"status"`
	AssignedTenantID string            `json:"assigned_tenant_id,omitempty"`
	AssignedAt       *time.Time        `json:"assigned_at,omitempty"`
}

// SlotFromDomain конвертирует domain.Slot в SlotResponse.
func SlotFromDomain(s domain.Slot) SlotResponse {
	return SlotResponse{
		ID:               s.ID,
		ProjectNumber:    s.ProjectNumber,
		UserSlot:         s.UserSlot,
		Status:           s.Status,
		AssignedTenantID: s.AssignedTenantID,
		AssignedAt:       s.AssignedAt,
	}
}

// AuditEntryResponse — запись audit-журнала.
type AuditEntryResponse struct {
	ID        int64              `json:"id"`
	SlotID    string             `json:"slot_id"`
	TenantID  string             `json:"tenant_id,omitempty"`
	Action    domain.AuditAction `json:"action"`
	Details   string             `json:"details,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// AuditFromDomain конвертирует domain.AuditEntry в AuditEntryResponse.
func AuditFromDomain(e domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		SlotID:    e.SlotID,
		TenantID:  e.TenantID,
		Action:    e.Action,
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
}

// Workflow DTOs

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID               uuid.UUID               `json:"id"`
	TenantID         string                  `json:"tenant_id"`
	SlotID           string                  `json:"slot_id"`
	Name             string                  `json:"name"`
	DeploymentStatus domain.DeploymentStatus `json:"deployment_status"`
	EngineWorkflowID string                  `json:"engine_workflow_id,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(w domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:               w.ID,
		TenantID:         w.TenantID,
		SlotID:           w.SlotID,
		Name:             w.Name,
		DeploymentStatus: w.DeploymentStatus,
		EngineWorkflowID: w.EngineWorkflowID,
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
	}
}
