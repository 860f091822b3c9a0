// Package engineapi — REST-клиент внешнего execution engine.
//
// Engine рассматривается как чёрный ящик: create/activate/delete/list
// workflow, каждый идентифицируется engine-assigned id. Аутентификация —
// API-ключом из конфигурации.
//
// Ошибки классифицируются:
//   - ErrTransient — 5xx, таймаут, сетевые сбои; подлежат retry
//   - ErrRejected  — 4xx, engine отклонил документ; retry бессмысленен
//
// Retry с экспоненциальным backoff — retry.go.
package engineapi
