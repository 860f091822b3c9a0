// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (оркестратор, репозитории, координатор)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - session_handler.go  — диалоговые сессии
//   - slot_handler.go     — пул слотов и audit-журнал
//   - workflow_handler.go — развёрнутые workflows и teardown
//
// Идентификатор tenant'а приходит в пути и считается уже
// аутентифицированным вышестоящим шлюзом.
package api
