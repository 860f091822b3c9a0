package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Slot — единица исполнения во внешнем engine.
//
// Пул слотов фиксирован: P проектов × S слотов в каждом,
// создаётся один раз при bootstrap'е и никогда не удаляется.
// Слот эксклюзивно закрепляется за одним tenant'ом.
//
// Инварианты:
//   - AssignedTenantID непуст ⇔ Status=ACTIVE
//   - у одного tenant'а не более одного активного слота
//     (partial unique index в БД)
type Slot struct {
	// ID — идентификатор вида "p03s02" (проект 3, слот 2).
	ID string `json:"id"`

	// ProjectNumber — номер проекта (1..P).
	ProjectNumber int `json:"project_number"`

	// UserSlot — номер слота внутри проекта (1..S).
	UserSlot int `json:"user_slot"`

	// Status — текущий статус слота.
	Status SlotStatus `json:"status"`

	// AssignedTenantID — tenant, за которым закреплён слот.
	// Пустой, если слот не ACTIVE.
	AssignedTenantID string `json:"assigned_tenant_id,omitempty"`

	// AssignedAt — время назначения.
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

// SlotID формирует идентификатор слота из координат матрицы.
func SlotID(project, userSlot int) string {
	return fmt.Sprintf("p%02ds%02d", project, userSlot)
}

// IsAssigned возвращает true, если слот закреплён за tenant'ом.
func (s *Slot) IsAssigned() bool {
	return s.Status == SlotStatusActive && s.AssignedTenantID != ""
}

// SlotMetadata — запись о назначении слота.
//
// Создаётся при каждом назначении, архивируется при освобождении.
// Неархивированная запись у AVAILABLE-слота — признак незавершённой
// очистки (проверка L3 аллокатора).
type SlotMetadata struct {
	// SlotID — слот, к которому относится запись.
	SlotID string `json:"slot_id"`

	// TenantHash — sha256(tenantID + время назначения).
	// Хранится вместо tenantID, чтобы метаданные не раскрывали владельца.
	TenantHash string `json:"tenant_hash"`

	// Archived — запись закрыта при освобождении слота.
	Archived bool `json:"archived"`

	// CreatedAt — время назначения.
	CreatedAt time.Time `json:"created_at"`
}

// Age возвращает возраст записи.
func (m *SlotMetadata) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// MetadataHash вычисляет хэш для записи метаданных.
func MetadataHash(tenantID string, assignedAt time.Time) string {
	sum := sha256.Sum256([]byte(tenantID + assignedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// AuditEntry — запись append-only журнала назначений.
//
// Журнал никогда не мутируется и не удаляется.
type AuditEntry struct {
	// ID — порядковый номер записи (bigserial).
	ID int64 `json:"id"`

	// SlotID — слот, к которому относится запись.
	SlotID string `json:"slot_id"`

	// TenantID — tenant (пустой для warning-записей без владельца).
	TenantID string `json:"tenant_id,omitempty"`

	// Action — действие: ASSIGNED, UNASSIGNED, VERIFIED, WARNING.
	Action AuditAction `json:"action"`

	// Details — человекочитаемые подробности.
	Details string `json:"details,omitempty"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}
