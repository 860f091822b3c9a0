package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Concierge/internal/domain"
)

// WorkflowRepo — репозиторий наших записей о развёрнутых workflows.
//
// Это локальная бухгалтерия: собственную запись о workflow ведёт
// и сам engine; расхождения устраняет reconciler.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create сохраняет запись о workflow.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	defJSON, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, slot_id, name, definition,
		                       deployment_status, engine_workflow_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.TenantID,
		wf.SlotID,
		wf.Name,
		defJSON,
		wf.DeploymentStatus,
		wf.EngineWorkflowID,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// UpdateStatus сохраняет статус деплоя и engine id.
func (r *WorkflowRepo) UpdateStatus(ctx context.Context, wf *domain.Workflow) error {
	query := `
		UPDATE workflows
		SET deployment_status = $2, engine_workflow_id = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		wf.ID, wf.DeploymentStatus, wf.EngineWorkflowID, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByTenant возвращает workflow tenant'а (последний созданный).
func (r *WorkflowRepo) GetByTenant(ctx context.Context, tenantID string) (*domain.Workflow, error) {
	query := `
		SELECT id, tenant_id, slot_id, name, definition,
		       deployment_status, engine_workflow_id, created_at, updated_at
		FROM workflows
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, tenantID))
}

// ListBySlot возвращает записи о workflows, помеченных слотом.
func (r *WorkflowRepo) ListBySlot(ctx context.Context, slotID string) ([]domain.Workflow, error) {
	query := `
		SELECT id, tenant_id, slot_id, name, definition,
		       deployment_status, engine_workflow_id, created_at, updated_at
		FROM workflows
		WHERE slot_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("list workflows by slot: %w", err)
	}
	defer rows.Close()

	var wfs []domain.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		wfs = append(wfs, *wf)
	}
	return wfs, rows.Err()
}

// Delete удаляет запись о workflow (teardown по инициативе tenant'а).
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var defJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.TenantID,
		&wf.SlotID,
		&wf.Name,
		&defJSON,
		&wf.DeploymentStatus,
		&wf.EngineWorkflowID,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if len(defJSON) > 0 {
		if err := json.Unmarshal(defJSON, &wf.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
	}
	return &wf, nil
}
