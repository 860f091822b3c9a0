// Package config собирает настройки системы из переменных окружения.
//
// Отдельные инфраструктурные адреса (DB_URL, RABBITMQ_URL, LOG_*)
// читаются там, где используются; здесь — только предметные опции,
// общие для нескольких сервисов.
package config

import (
	"os"
	"strconv"
	"time"
)

// Значения по умолчанию.
const (
	DefaultProjectCount         = 10
	DefaultSlotsPerProject      = 5
	DefaultStaleGraceDays       = 30
	DefaultEngineRetryAttempts  = 3
	DefaultEngineRetryBaseDelay = 500 * time.Millisecond
	DefaultSessionIdleTimeout   = 24 * time.Hour
	DefaultReconcileCron        = "0 * * * *" // раз в час
)

// Config — предметная конфигурация системы.
type Config struct {
	// ProjectCount — P: количество проектов в пуле слотов.
	ProjectCount int

	// SlotsPerProject — S: слотов в каждом проекте.
	SlotsPerProject int

	// StaleMetadataGrace — период, в течение которого неархивированные
	// метаданные считаются свежими (проверка L3).
	StaleMetadataGrace time.Duration

	// EngineRetryAttempts — максимум попыток вызова engine.
	EngineRetryAttempts int

	// EngineRetryBaseDelay — базовая задержка экспоненциального backoff.
	EngineRetryBaseDelay time.Duration

	// SessionIdleTimeout — бездействие, после которого сессия отменяется.
	SessionIdleTimeout time.Duration

	// ReconcileCron — cron-выражение расписания reconciler'а.
	ReconcileCron string

	// EngineURL — адрес внешнего execution engine.
	EngineURL string

	// EngineAPIKey — API-ключ для engine.
	EngineAPIKey string
}

// Load читает конфигурацию из окружения, подставляя значения по умолчанию.
func Load() Config {
	return Config{
		ProjectCount:         envInt("PROJECT_COUNT", DefaultProjectCount),
		SlotsPerProject:      envInt("SLOTS_PER_PROJECT", DefaultSlotsPerProject),
		StaleMetadataGrace:   time.Duration(envInt("STALE_METADATA_GRACE_DAYS", DefaultStaleGraceDays)) * 24 * time.Hour,
		EngineRetryAttempts:  envInt("ENGINE_RETRY_ATTEMPTS", DefaultEngineRetryAttempts),
		EngineRetryBaseDelay: time.Duration(envInt("ENGINE_RETRY_BASE_DELAY_MS", int(DefaultEngineRetryBaseDelay/time.Millisecond))) * time.Millisecond,
		SessionIdleTimeout:   time.Duration(envInt("SESSION_IDLE_TIMEOUT_HOURS", int(DefaultSessionIdleTimeout/time.Hour))) * time.Hour,
		ReconcileCron:        envString("RECONCILE_CRON", DefaultReconcileCron),
		EngineURL:            envString("ENGINE_URL", "http://localhost:5678"),
		EngineAPIKey:         os.Getenv("ENGINE_API_KEY"),
	}
}

// PoolCapacity возвращает общую ёмкость пула: P × S.
func (c Config) PoolCapacity() int {
	return c.ProjectCount * c.SlotsPerProject
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
