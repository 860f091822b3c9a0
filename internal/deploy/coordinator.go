package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/mq"
	"github.com/shaiso/Concierge/internal/repo"
	"github.com/shaiso/Concierge/internal/telemetry"
)

// WorkflowStore — операции хранилища записей о workflows.
// Реализуется repo.WorkflowRepo.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	UpdateStatus(ctx context.Context, wf *domain.Workflow) error
	GetByTenant(ctx context.Context, tenantID string) (*domain.Workflow, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EngineClient — операции engine'а, нужные координатору.
// Реализуется engineapi.Client.
type EngineClient interface {
	CreateWorkflow(ctx context.Context, def *engineapi.WorkflowDefinition) (string, error)
	ActivateWorkflow(ctx context.Context, engineID string) error
	DeactivateWorkflow(ctx context.Context, engineID string) error
	DeleteWorkflow(ctx context.Context, engineID string) error
}

// SlotReleaser освобождает слот tenant'а при teardown'е.
// Реализуется allocator.Allocator.
type SlotReleaser interface {
	Release(ctx context.Context, tenantID string) (*domain.Slot, error)
}

// Coordinator ведёт деплой и teardown workflows.
type Coordinator struct {
	store     WorkflowStore
	engine    EngineClient
	releaser  SlotReleaser
	validator *catalog.Validator
	retry     engineapi.RetryPolicy
	publisher *mq.Publisher
	logger    *slog.Logger
}

// Config — конфигурация координатора.
type Config struct {
	Store     WorkflowStore
	Engine    EngineClient
	Releaser  SlotReleaser
	Validator *catalog.Validator
	Retry     engineapi.RetryPolicy
	Publisher *mq.Publisher
	Logger    *slog.Logger
}

// New создаёт Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     cfg.Store,
		engine:    cfg.Engine,
		releaser:  cfg.Releaser,
		validator: cfg.Validator,
		retry:     cfg.Retry,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Deploy компилирует scope и разворачивает workflow в слоте tenant'а.
//
// Transient-ошибки engine'а повторяются по политике; отклонение
// документа (4xx) — постоянная ошибка, фиксируется сразу. Запись о
// workflow остаётся в любом исходе: FAILED-запись нужна для разбора.
func (c *Coordinator) Deploy(ctx context.Context, tenantID, slotID string, scope *domain.ScopeDraft) (*domain.Workflow, error) {
	def, err := Compile(tenantID, slotID, scope, c.validator)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}

	doc, err := definitionDocument(def)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	wf := &domain.Workflow{
		ID:               uuid.New(),
		TenantID:         tenantID,
		SlotID:           slotID,
		Name:             def.Name,
		Definition:       doc,
		DeploymentStatus: domain.DeploymentPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.store.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("record workflow: %w", err)
	}

	var engineID string
	deployErr := c.retry.Do(ctx, func(ctx context.Context) error {
		id, err := c.engine.CreateWorkflow(ctx, def)
		if err != nil {
			return err
		}
		engineID = id
		return c.engine.ActivateWorkflow(ctx, id)
	})

	if deployErr != nil {
		wf.MarkFailed()
		if err := c.store.UpdateStatus(ctx, wf); err != nil {
			c.logger.Error("record deploy failure", "workflow_id", wf.ID, "error", err)
		}

		outcome := "failed"
		if errors.Is(deployErr, engineapi.ErrRejected) {
			outcome = "rejected"
		}
		telemetry.Deployments.WithLabelValues(outcome).Inc()
		c.logger.Error("deploy failed",
			"tenant_id", tenantID, "slot_id", slotID,
			"workflow", def.Name, "outcome", outcome, "error", deployErr)
		c.publisher.Publish(ctx, mq.EventWorkflowFailed, tenantID, map[string]any{
			"workflow_id": wf.ID.String(),
			"slot_id":     slotID,
			"outcome":     outcome,
		})
		return wf, deployErr
	}

	wf.MarkDeployed(engineID)
	if err := c.store.UpdateStatus(ctx, wf); err != nil {
		// Engine уже держит workflow; расхождение закроет reconciler.
		c.logger.Error("record deploy success", "workflow_id", wf.ID, "error", err)
	}

	telemetry.Deployments.WithLabelValues("deployed").Inc()
	c.logger.Info("workflow deployed",
		"tenant_id", tenantID, "slot_id", slotID,
		"workflow", def.Name, "engine_id", engineID)
	c.publisher.Publish(ctx, mq.EventWorkflowDeployed, tenantID, map[string]any{
		"workflow_id": wf.ID.String(),
		"slot_id":     slotID,
		"engine_id":   engineID,
	})
	return wf, nil
}

// Teardown удаляет workflow tenant'а из engine'а и освобождает слот.
//
// repo.ErrNotFound, если у tenant'а нет записи о workflow.
func (c *Coordinator) Teardown(ctx context.Context, tenantID string) error {
	wf, err := c.store.GetByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	if wf.EngineWorkflowID != "" {
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			if err := c.engine.DeactivateWorkflow(ctx, wf.EngineWorkflowID); err != nil &&
				!errors.Is(err, engineapi.ErrNotFound) {
				return err
			}
			return c.engine.DeleteWorkflow(ctx, wf.EngineWorkflowID)
		})
		if err != nil {
			return fmt.Errorf("remove workflow from engine: %w", err)
		}
	}

	if err := c.store.Delete(ctx, wf.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("delete workflow record: %w", err)
	}

	if _, err := c.releaser.Release(ctx, tenantID); err != nil &&
		!errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("release slot: %w", err)
	}

	c.logger.Info("workflow torn down",
		"tenant_id", tenantID, "slot_id", wf.SlotID, "workflow_id", wf.ID)
	return nil
}
