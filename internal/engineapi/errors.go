package engineapi

import "errors"

// Ошибки engine-клиента.
var (
	// ErrTransient — временный сбой engine'а (5xx, таймаут, сеть).
	ErrTransient = errors.New("engine transient error")

	// ErrRejected — engine отклонил запрос (4xx), повтор бессмысленен.
	ErrRejected = errors.New("engine rejected request")

	// ErrNotFound — workflow не найден в engine.
	ErrNotFound = errors.New("engine workflow not found")
)
