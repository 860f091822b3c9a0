// Package domain содержит основные бизнес-сущности системы.
//
// Сущности:
//   - ConversationSession / Turn — диалог с пользователем и его фазы
//   - ScopeDraft — структурированное описание автоматизации, собираемое по ходу диалога
//   - FeasibilityReport — результат проверки осуществимости по каталогу возможностей
//   - Slot / SlotMetadata / AuditEntry — слоты исполнения и журнал их назначений
//   - Workflow — развёрнутый workflow во внешнем execution engine
//
// Пакет не зависит от инфраструктуры (БД, MQ, HTTP) —
// только типы, статусы и методы переходов.
package domain
