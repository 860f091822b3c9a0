package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — наша запись о workflow, развёрнутом во внешнем engine.
//
// Создаётся координатором деплоя; удаляется только при явном
// teardown'е со стороны tenant'а, который также освобождает слот.
//
// Engine хранит собственную запись (EngineWorkflowID) — две системы
// согласуются eventually, фоновым reconciler'ом.
type Workflow struct {
	// ID — наш идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец workflow.
	TenantID string `json:"tenant_id"`

	// SlotID — слот, которым помечен workflow.
	SlotID string `json:"slot_id"`

	// Name — имя во внешнем engine, с префиксом tenant'а.
	Name string `json:"name"`

	// Definition — документ workflow в формате engine'а.
	Definition map[string]any `json:"definition,omitempty"`

	// DeploymentStatus — статус деплоя.
	DeploymentStatus DeploymentStatus `json:"deployment_status"`

	// EngineWorkflowID — идентификатор, присвоенный engine'ом.
	// Пустой, пока engine не принял workflow.
	EngineWorkflowID string `json:"engine_workflow_id,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения статуса.
	UpdatedAt time.Time `json:"updated_at"`
}

// MarkDeployed фиксирует успешный деплой.
func (w *Workflow) MarkDeployed(engineID string) {
	w.DeploymentStatus = DeploymentDeployed
	w.EngineWorkflowID = engineID
	w.UpdatedAt = time.Now()
}

// MarkFailed фиксирует неудачный деплой.
func (w *Workflow) MarkFailed() {
	w.DeploymentStatus = DeploymentFailed
	w.UpdatedAt = time.Now()
}
