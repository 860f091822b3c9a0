// Package conversation — оркестратор диалога о создании автоматизации.
//
// Сессия движется по фазам (domain.Phase) строго одним переходом на
// реплику пользователя; исключение — фаза CREATING, которая проходится
// синхронно внутри обработки подтверждения. Из реплик извлекаются поля
// ScopeDraft; вопросы задаются только о недостающих обязательных полях.
//
// Когда scope собран, он сразу проверяется по каталогу: пользователь
// получает либо сводку с просьбой подтвердить, либо список
// неосуществимых элементов с альтернативами. Подтверждение запускает
// выделение слота и деплой.
//
// Содержание реплик агента детерминировано (шаблоны); опциональный
// llm.Completer лишь переформулирует готовый черновик.
package conversation
