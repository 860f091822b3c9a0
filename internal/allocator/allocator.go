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

// SlotStore — операции хранилища слотов, нужные аллокатору.
// Реализуется repo.SlotRepo.
type SlotStore interface {
	Candidates(ctx context.Context) ([]domain.Slot, error)
	ActiveByTenant(ctx context.Context, tenantID string) (*domain.Slot, error)
	Get(ctx context.Context, id string) (*domain.Slot, error)
	Assign(ctx context.Context, slotID, tenantID string) (*domain.Slot, error)
	Release(ctx context.Context, tenantID string) (*domain.Slot, error)
	CountActive(ctx context.Context) (int, error)
	LatestOpenMetadata(ctx context.Context, slotID string) (*domain.SlotMetadata, error)
	LatestAssignmentAudit(ctx context.Context, slotID string) (*domain.AuditEntry, error)
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
}

// EngineInventory — взгляд на фактическое содержимое engine'а.
// Реализуется engineapi.Client.
type EngineInventory interface {
	ListWorkflowsByTag(ctx context.Context, tag string) ([]engineapi.EngineWorkflow, error)
}

// Allocator выдаёт и освобождает слоты пула.
type Allocator struct {
	store      SlotStore
	engine     EngineInventory
	publisher  *mq.Publisher
	logger     *slog.Logger
	staleGrace time.Duration
}

// Config — конфигурация аллокатора.
type Config struct {
	// Store — хранилище слотов.
	Store SlotStore

	// Engine — инвентарь engine'а для проверки L2.
	Engine EngineInventory

	// Publisher — поток событий (может быть nil).
	Publisher *mq.Publisher

	// Logger — логгер.
	Logger *slog.Logger

	// StaleGrace — период свежести неархивированных метаданных (L3).
	StaleGrace time.Duration
}

// New создаёт Allocator.
func New(cfg Config) *Allocator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		store:      cfg.Store,
		engine:     cfg.Engine,
		publisher:  cfg.Publisher,
		logger:     logger,
		staleGrace: cfg.StaleGrace,
	}
}

// Acquire закрепляет слот за tenant'ом.
//
// Идемпотентен: повторный вызов для tenant'а с активным слотом
// возвращает тот же слот без новых записей в журнале.
//
// Кандидаты перебираются в порядке балансировки нагрузки (наименее
// занятый проект первым). Каждый кандидат проходит проверки L1-L4;
// отвергнутый пропускается, проигранная гонка за Assign — тоже.
// Исчерпание кандидатов — ErrCapacityExceeded.
func (a *Allocator) Acquire(ctx context.Context, tenantID string) (*domain.Slot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	// Идемпотентность: уже есть активный слот — возвращаем его.
	existing, err := a.store.ActiveByTenant(ctx, tenantID)
	if err == nil {
		a.logger.Debug("tenant already holds a slot",
			"tenant_id", tenantID, "slot_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check active slot: %w", err)
	}

	candidates, err := a.store.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if ok, err := a.verify(ctx, candidate.ID); err != nil {
			return nil, err
		} else if !ok {
			continue
		}

		slot, err := a.store.Assign(ctx, candidate.ID, tenantID)
		if errors.Is(err, repo.ErrAllocationConflict) {
			// Конкурент успел первым — следующий кандидат.
			telemetry.AllocationConflicts.Inc()
			a.logger.Info("candidate lost to concurrent acquirer",
				"slot_id", candidate.ID, "tenant_id", tenantID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assign slot %s: %w", candidate.ID, err)
		}

		a.refreshActiveGauge(ctx)
		a.logger.Info("slot acquired", "slot_id", slot.ID, "tenant_id", tenantID)
		a.publisher.Publish(ctx, mq.EventSlotAssigned, tenantID,
			mq.SlotPayload(slot.ID, nil))
		return slot, nil
	}

	telemetry.CapacityExceeded.Inc()
	return nil, fmt.Errorf("%w: no eligible slot for tenant %s", ErrCapacityExceeded, tenantID)
}

// Release освобождает активный слот tenant'а.
// repo.ErrNotFound, если активного слота нет.
func (a *Allocator) Release(ctx context.Context, tenantID string) (*domain.Slot, error) {
	slot, err := a.store.Release(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	a.refreshActiveGauge(ctx)
	a.logger.Info("slot released", "slot_id", slot.ID, "tenant_id", tenantID)
	a.publisher.Publish(ctx, mq.EventSlotReleased, tenantID,
		mq.SlotPayload(slot.ID, nil))
	return slot, nil
}

// verify прогоняет кандидата через слои L1-L4.
// false — кандидат отвергнут (с WARNING-записью в журнале).
func (a *Allocator) verify(ctx context.Context, slotID string) (bool, error) {
	// L1: статус в БД всё ещё AVAILABLE. Смена статуса после выборки
	// кандидатов — проигранная гонка, а не расхождение: считаем
	// конфликтом и журнал не трогаем.
	slot, err := a.store.Get(ctx, slotID)
	if err != nil {
		return false, fmt.Errorf("verify status of %s: %w", slotID, err)
	}
	if slot.Status != domain.SlotStatusAvailable {
		telemetry.AllocationConflicts.Inc()
		a.logger.Info("candidate no longer available",
			"slot_id", slotID, "status", slot.Status)
		return false, nil
	}

	// L2: в engine нет workflows с меткой этого слота.
	residual, err := a.engine.ListWorkflowsByTag(ctx, engineapi.SlotTag(slotID))
	if err != nil {
		return false, fmt.Errorf("verify engine inventory of %s: %w", slotID, err)
	}
	if len(residual) > 0 {
		a.reject(ctx, slotID, "L2",
			fmt.Sprintf("%d residual workflow(s) in engine", len(residual)))
		return false, nil
	}

	// L3: нет свежей неархивированной записи метаданных.
	meta, err := a.store.LatestOpenMetadata(ctx, slotID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// Чистый слот.
	case err != nil:
		return false, fmt.Errorf("verify metadata of %s: %w", slotID, err)
	case meta.Age(time.Now()) < a.staleGrace:
		a.reject(ctx, slotID, "L3", "fresh unarchived metadata record")
		return false, nil
	default:
		// Просроченный огрызок прошлой очистки: слот пригоден,
		// но след остаётся в журнале.
		age := meta.Age(time.Now())
		a.logger.Warn("stale metadata on candidate, proceeding",
			"slot_id", slotID, "metadata_age", age.String())
		a.noteWarning(ctx, slotID, "L3",
			fmt.Sprintf("stale metadata (age %s), proceeding", age))
	}

	// L4: последняя запись журнала назначений — не ASSIGNED.
	last, err := a.store.LatestAssignmentAudit(ctx, slotID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		// Слот ещё ни разу не выдавался.
	case err != nil:
		return false, fmt.Errorf("verify audit of %s: %w", slotID, err)
	case last.Action == domain.AuditAssigned:
		a.reject(ctx, slotID, "L4", "audit trail ends with ASSIGNED")
		return false, nil
	}

	return true, nil
}

// reject фиксирует отвергнутого кандидата: метрика, WARNING в журнале.
func (a *Allocator) reject(ctx context.Context, slotID, layer, reason string) {
	telemetry.WithSlotID(a.logger, slotID).Warn("candidate rejected",
		"layer", layer, "reason", reason)
	a.noteWarning(ctx, slotID, layer, reason)
}

// noteWarning пишет WARNING в журнал слота и увеличивает счётчик слоя.
func (a *Allocator) noteWarning(ctx context.Context, slotID, layer, reason string) {
	telemetry.ConsistencyWarnings.WithLabelValues(layer).Inc()

	entry := &domain.AuditEntry{
		SlotID:  slotID,
		Action:  domain.AuditWarning,
		Details: fmt.Sprintf("%s: %s", layer, reason),
	}
	if err := a.store.AppendAudit(ctx, entry); err != nil {
		telemetry.WithSlotID(a.logger, slotID).Error("append warning audit", "error", err)
	}
}

// refreshActiveGauge обновляет gauge активных слотов.
func (a *Allocator) refreshActiveGauge(ctx context.Context) {
	count, err := a.store.CountActive(ctx)
	if err != nil {
		a.logger.Warn("count active slots", "error", err)
		return
	}
	telemetry.SlotsActive.Set(float64(count))
}
