// Package repo — доступ к PostgreSQL через pgx.
//
// Репозитории:
//   - SessionRepo  — диалоговые сессии (conversation store)
//   - SlotRepo     — пул слотов, метаданные назначений, audit-журнал
//   - WorkflowRepo — наши записи о развёрнутых workflows
//
// SlotRepo.Assign и SlotRepo.Release — транзакционные: row-level lock
// (SELECT ... FOR UPDATE) на строке слота сериализует конкурентные
// назначения; проигравший получает ErrAllocationConflict.
package repo
