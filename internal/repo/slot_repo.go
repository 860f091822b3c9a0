package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Concierge/internal/domain"
)

// SlotRepo — репозиторий пула слотов, метаданных и audit-журнала.
type SlotRepo struct {
	pool *pgxpool.Pool
}

// NewSlotRepo создаёт новый SlotRepo.
func NewSlotRepo(pool *pgxpool.Pool) *SlotRepo {
	return &SlotRepo{pool: pool}
}

// Seed создаёт матрицу слотов P×S, если её ещё нет. Идемпотентен.
func (r *SlotRepo) Seed(ctx context.Context, projects, slotsPerProject int) error {
	query := `
		INSERT INTO slots (id, project_number, user_slot, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	for p := 1; p <= projects; p++ {
		for s := 1; s <= slotsPerProject; s++ {
			_, err := r.pool.Exec(ctx, query,
				domain.SlotID(p, s), p, s, domain.SlotStatusAvailable)
			if err != nil {
				return fmt.Errorf("seed slot %s: %w", domain.SlotID(p, s), err)
			}
		}
	}
	return nil
}

// Get возвращает слот по идентификатору.
func (r *SlotRepo) Get(ctx context.Context, id string) (*domain.Slot, error) {
	query := `
		SELECT id, project_number, user_slot, status, assigned_tenant_id, assigned_at
		FROM slots
		WHERE id = $1
	`
	return scanSlot(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все слоты пула в порядке матрицы.
func (r *SlotRepo) List(ctx context.Context) ([]domain.Slot, error) {
	query := `
		SELECT id, project_number, user_slot, status, assigned_tenant_id, assigned_at
		FROM slots
		ORDER BY project_number, user_slot
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// ListAvailable возвращает слоты со статусом AVAILABLE в порядке матрицы.
// Используется reconciler'ом.
func (r *SlotRepo) ListAvailable(ctx context.Context) ([]domain.Slot, error) {
	query := `
		SELECT id, project_number, user_slot, status, assigned_tenant_id, assigned_at
		FROM slots
		WHERE status = $1
		ORDER BY project_number, user_slot
	`
	rows, err := r.pool.Query(ctx, query, domain.SlotStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// ActiveByTenant возвращает активный слот tenant'а.
// ErrNotFound, если у tenant'а нет активного слота.
func (r *SlotRepo) ActiveByTenant(ctx context.Context, tenantID string) (*domain.Slot, error) {
	query := `
		SELECT id, project_number, user_slot, status, assigned_tenant_id, assigned_at
		FROM slots
		WHERE assigned_tenant_id = $1 AND status = $2
	`
	return scanSlot(r.pool.QueryRow(ctx, query, tenantID, domain.SlotStatusActive))
}

// Candidates возвращает свободные слоты в порядке выбора кандидата:
// сначала проект с наименьшим числом активных слотов (при равенстве —
// меньший номер проекта), внутри проекта — меньший номер слота.
func (r *SlotRepo) Candidates(ctx context.Context) ([]domain.Slot, error) {
	query := `
		SELECT s.id, s.project_number, s.user_slot, s.status, s.assigned_tenant_id, s.assigned_at
		FROM slots s
		JOIN (
			SELECT project_number,
			       COUNT(*) FILTER (WHERE status = $2) AS active_count
			FROM slots
			GROUP BY project_number
		) pc ON pc.project_number = s.project_number
		WHERE s.status = $1
		ORDER BY pc.active_count, s.project_number, s.user_slot
	`
	rows, err := r.pool.Query(ctx, query, domain.SlotStatusAvailable, domain.SlotStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// CountActive возвращает количество активных слотов.
func (r *SlotRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM slots WHERE status = $1`, domain.SlotStatusActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active slots: %w", err)
	}
	return count, nil
}

// Assign атомарно закрепляет слот за tenant'ом.
//
// Одна транзакция: row-level lock на строке слота, перепроверка
// статуса, смена статуса, свежая запись метаданных и ASSIGNED-запись
// журнала. Конкурент, успевший первым, оставляет нам
// ErrAllocationConflict — вызывающий переходит к следующему кандидату.
func (r *SlotRepo) Assign(ctx context.Context, slotID, tenantID string) (*domain.Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin assign: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.SlotStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM slots WHERE id = $1 FOR UPDATE`, slotID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock slot %s: %w", slotID, err)
	}
	if status != domain.SlotStatusAvailable {
		return nil, fmt.Errorf("%w: slot %s is %s", ErrAllocationConflict, slotID, status)
	}

	now := time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET status = $2, assigned_tenant_id = $3, assigned_at = $4
		WHERE id = $1
	`, slotID, domain.SlotStatusActive, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("activate slot %s: %w", slotID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO slot_metadata (slot_id, tenant_hash, archived, created_at)
		VALUES ($1, $2, FALSE, $3)
	`, slotID, domain.MetadataHash(tenantID, now), now)
	if err != nil {
		return nil, fmt.Errorf("insert metadata for %s: %w", slotID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO slot_audit (slot_id, tenant_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, slotID, tenantID, domain.AuditAssigned, "slot assigned", now)
	if err != nil {
		return nil, fmt.Errorf("insert audit for %s: %w", slotID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit assign: %w", err)
	}

	return &domain.Slot{
		ID:               slotID,
		Status:           domain.SlotStatusActive,
		AssignedTenantID: tenantID,
		AssignedAt:       &now,
	}, nil
}

// Release атомарно освобождает активный слот tenant'а.
//
// Одна транзакция: архив метаданных, UNASSIGNED-запись журнала,
// возврат статуса в AVAILABLE. ErrNotFound, если активного слота нет.
func (r *SlotRepo) Release(ctx context.Context, tenantID string) (*domain.Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	var slotID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM slots
		WHERE assigned_tenant_id = $1 AND status = $2
		FOR UPDATE
	`, tenantID, domain.SlotStatusActive).Scan(&slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock active slot of %s: %w", tenantID, err)
	}

	now := time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET status = $2, assigned_tenant_id = NULL, assigned_at = NULL
		WHERE id = $1
	`, slotID, domain.SlotStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("free slot %s: %w", slotID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE slot_metadata SET archived = TRUE
		WHERE slot_id = $1 AND NOT archived
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("archive metadata for %s: %w", slotID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO slot_audit (slot_id, tenant_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, slotID, tenantID, domain.AuditUnassigned, "slot released", now)
	if err != nil {
		return nil, fmt.Errorf("insert audit for %s: %w", slotID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}

	return &domain.Slot{ID: slotID, Status: domain.SlotStatusAvailable}, nil
}

// MarkActive — исправление reconciler'а: слот числился AVAILABLE,
// но фактически занят. Возвращает статус в ACTIVE с пояснением.
func (r *SlotRepo) MarkActive(ctx context.Context, slotID, tenantID, note string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin correction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	result, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = $2, assigned_tenant_id = $3, assigned_at = $4
		WHERE id = $1 AND status = $5
	`, slotID, domain.SlotStatusActive, tenantID, now, domain.SlotStatusAvailable)
	if err != nil {
		return fmt.Errorf("correct slot %s: %w", slotID, err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO slot_audit (slot_id, tenant_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, slotID, tenantID, domain.AuditVerified, note, now)
	if err != nil {
		return fmt.Errorf("insert audit for %s: %w", slotID, err)
	}

	return tx.Commit(ctx)
}

// --- Метаданные ---

// LatestOpenMetadata возвращает свежайшую неархивированную запись
// метаданных слота. ErrNotFound, если таких нет.
func (r *SlotRepo) LatestOpenMetadata(ctx context.Context, slotID string) (*domain.SlotMetadata, error) {
	query := `
		SELECT slot_id, tenant_hash, archived, created_at
		FROM slot_metadata
		WHERE slot_id = $1 AND NOT archived
		ORDER BY created_at DESC
		LIMIT 1
	`
	var meta domain.SlotMetadata
	err := r.pool.QueryRow(ctx, query, slotID).Scan(
		&meta.SlotID, &meta.TenantHash, &meta.Archived, &meta.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest metadata for %s: %w", slotID, err)
	}
	return &meta, nil
}

// --- Audit-журнал ---

// AppendAudit добавляет запись в журнал (warning/verified вне транзакций
// назначения).
func (r *SlotRepo) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO slot_audit (slot_id, tenant_id, action, details, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.SlotID, entry.TenantID, entry.Action, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// LatestAssignmentAudit возвращает последнюю запись журнала слота
// с действием ASSIGNED или UNASSIGNED (warning/verified не в счёт).
// ErrNotFound, если назначений ещё не было.
func (r *SlotRepo) LatestAssignmentAudit(ctx context.Context, slotID string) (*domain.AuditEntry, error) {
	query := `
		SELECT id, slot_id, COALESCE(tenant_id, ''), action, details, created_at
		FROM slot_audit
		WHERE slot_id = $1 AND action IN ($2, $3)
		ORDER BY id DESC
		LIMIT 1
	`
	var entry domain.AuditEntry
	err := r.pool.QueryRow(ctx, query, slotID, domain.AuditAssigned, domain.AuditUnassigned).Scan(
		&entry.ID, &entry.SlotID, &entry.TenantID, &entry.Action, &entry.Details, &entry.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest assignment audit for %s: %w", slotID, err)
	}
	return &entry, nil
}

// ListAudit возвращает записи журнала слота, новые первыми.
func (r *SlotRepo) ListAudit(ctx context.Context, slotID string, limit int) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, slot_id, COALESCE(tenant_id, ''), action, details, created_at
		FROM slot_audit
		WHERE slot_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, slotID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		err := rows.Scan(
			&entry.ID, &entry.SlotID, &entry.TenantID, &entry.Action, &entry.Details, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// --- Helpers ---

func scanSlot(row pgx.Row) (*domain.Slot, error) {
	var slot domain.Slot
	var tenantID *string

	err := row.Scan(
		&slot.ID,
		&slot.ProjectNumber,
		&slot.UserSlot,
		&slot.Status,
		&tenantID,
		&slot.AssignedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan slot: %w", err)
	}

	if tenantID != nil {
		slot.AssignedTenantID = *tenantID
	}
	return &slot, nil
}

func collectSlots(rows pgx.Rows) ([]domain.Slot, error) {
	var slots []domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}
