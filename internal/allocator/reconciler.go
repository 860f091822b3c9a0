package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/mq"
	"github.com/shaiso/Concierge/internal/repo"
	"github.com/shaiso/Concierge/internal/telemetry"
)

// ReconcileStore — операции хранилища, нужные reconciler'у.
// Реализуется repo.SlotRepo.
type ReconcileStore interface {
	ListAvailable(ctx context.Context) ([]domain.Slot, error)
	MarkActive(ctx context.Context, slotID, tenantID, note string) error
	LatestOpenMetadata(ctx context.Context, slotID string) (*domain.SlotMetadata, error)
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
	CountActive(ctx context.Context) (int, error)
}

// Reconciler устраняет расхождения между БД и фактическим
// содержимым engine'а.
//
// Путь назначения слоты не чинит (только пропускает подозрительных
// кандидатов) — вся коррекция статусов сосредоточена здесь.
type Reconciler struct {
	store      ReconcileStore
	engine     EngineInventory
	publisher  *mq.Publisher
	logger     *slog.Logger
	staleGrace time.Duration
}

// NewReconciler создаёт Reconciler.
func NewReconciler(store ReconcileStore, engine EngineInventory, publisher *mq.Publisher, staleGrace time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:      store,
		engine:     engine,
		publisher:  publisher,
		logger:     logger,
		staleGrace: staleGrace,
	}
}

// Report — итог одного прохода reconciler'а.
type Report struct {
	// Scanned — проверено AVAILABLE-слотов.
	Scanned int

	// Corrected — статусов исправлено (AVAILABLE → ACTIVE).
	Corrected int

	// Flagged — слотов помечено для оператора.
	Flagged int
}

// Tick выполняет один проход по AVAILABLE-слотам.
//
// Слот с workflows в engine фактически занят: если владельца
// удаётся восстановить из меток — статус исправляется на ACTIVE,
// иначе слот помечается для оператора. Слот со свежими
// неархивированными метаданными — след незавершённой очистки,
// тоже помечается.
func (r *Reconciler) Tick(ctx context.Context) (Report, error) {
	var report Report

	available, err := r.store.ListAvailable(ctx)
	if err != nil {
		return report, fmt.Errorf("list available slots: %w", err)
	}

	for _, slot := range available {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		if err := r.checkSlot(ctx, slot.ID, &report); err != nil {
			// Один недоступный слот не прерывает проход.
			r.logger.Error("reconcile slot", "slot_id", slot.ID, "error", err)
		}
	}

	if count, err := r.store.CountActive(ctx); err == nil {
		telemetry.SlotsActive.Set(float64(count))
	}

	r.logger.Info("reconciliation sweep complete",
		"scanned", report.Scanned,
		"corrected", report.Corrected,
		"flagged", report.Flagged,
	)
	return report, nil
}

// checkSlot проверяет один AVAILABLE-слот.
func (r *Reconciler) checkSlot(ctx context.Context, slotID string, report *Report) error {
	workflows, err := r.engine.ListWorkflowsByTag(ctx, engineapi.SlotTag(slotID))
	if err != nil {
		return fmt.Errorf("engine inventory: %w", err)
	}

	if len(workflows) > 0 {
		return r.correctOccupied(ctx, slotID, workflows, report)
	}

	// Workflows нет: свежие неархивированные метаданные — признак
	// незавершённой очистки.
	meta, err := r.store.LatestOpenMetadata(ctx, slotID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if meta.Age(time.Now()) < r.staleGrace {
		r.flag(ctx, slotID, "unarchived metadata without engine workflows")
		report.Flagged++
	}
	return nil
}

// correctOccupied чинит слот, который числился AVAILABLE, но
// фактически занят в engine.
func (r *Reconciler) correctOccupied(ctx context.Context, slotID string, workflows []engineapi.EngineWorkflow, report *Report) error {
	tenantID := ""
	for _, wf := range workflows {
		if t := engineapi.TenantFromTags(wf.Tags); t != "" {
			tenantID = t
			break
		}
	}

	if tenantID == "" {
		// Владельца не восстановить — решает оператор.
		r.flag(ctx, slotID,
			fmt.Sprintf("%d engine workflow(s) without tenant tag", len(workflows)))
		report.Flagged++
		return nil
	}

	note := fmt.Sprintf("status corrected: %d workflow(s) found in engine for tenant %s",
		len(workflows), tenantID)
	err := r.store.MarkActive(ctx, slotID, tenantID, note)
	if errors.Is(err, repo.ErrInvalidState) {
		// Слот успели занять между проверкой и коррекцией.
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark active: %w", err)
	}

	telemetry.ReconcilerCorrections.Inc()
	report.Corrected++
	r.logger.Warn("slot status corrected",
		"slot_id", slotID, "tenant_id", tenantID, "workflows", len(workflows))
	r.publisher.Publish(ctx, mq.EventSlotAssigned, tenantID,
		mq.SlotPayload(slotID, map[string]any{"corrected": true}))
	return nil
}

// flag помечает слот для оператора: WARNING в журнале + событие.
func (r *Reconciler) flag(ctx context.Context, slotID, reason string) {
	r.logger.Warn("slot flagged for operator", "slot_id", slotID, "reason", reason)

	entry := &domain.AuditEntry{
		SlotID:  slotID,
		Action:  domain.AuditWarning,
		Details: reason,
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.logger.Error("append warning audit", "slot_id", slotID, "error", err)
	}
	r.publisher.Publish(ctx, mq.EventSlotFlagged, "",
		mq.SlotPayload(slotID, map[string]any{"reason": reason}))
}
