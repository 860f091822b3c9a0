package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations — схема БД. Выполняются идемпотентно при старте сервиса.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id         UUID PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		phase      TEXT NOT NULL,
		turns      JSONB NOT NULL DEFAULT '[]',
		scope      JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_tenant_idx ON sessions (tenant_id, updated_at)`,

	`CREATE TABLE IF NOT EXISTS slots (
		id                 TEXT PRIMARY KEY,
		project_number     INT NOT NULL,
		user_slot          INT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'AVAILABLE',
		assigned_tenant_id TEXT,
		assigned_at        TIMESTAMPTZ,
		UNIQUE (project_number, user_slot)
	)`,
	// У одного tenant'а — не более одного активного слота.
	`CREATE UNIQUE INDEX IF NOT EXISTS slots_one_active_per_tenant
		ON slots (assigned_tenant_id) WHERE status = 'ACTIVE'`,

	`CREATE TABLE IF NOT EXISTS slot_metadata (
		id          BIGSERIAL PRIMARY KEY,
		slot_id     TEXT NOT NULL REFERENCES slots (id),
		tenant_hash TEXT NOT NULL,
		archived    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS slot_metadata_slot_idx ON slot_metadata (slot_id, created_at DESC)`,

	// Append-only журнал: записи никогда не обновляются и не удаляются.
	`CREATE TABLE IF NOT EXISTS slot_audit (
		id         BIGSERIAL PRIMARY KEY,
		slot_id    TEXT NOT NULL REFERENCES slots (id),
		tenant_id  TEXT,
		action     TEXT NOT NULL,
		details    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS slot_audit_slot_idx ON slot_audit (slot_id, id DESC)`,

	`CREATE TABLE IF NOT EXISTS workflows (
		id                 UUID PRIMARY KEY,
		tenant_id          TEXT NOT NULL,
		slot_id            TEXT NOT NULL REFERENCES slots (id),
		name               TEXT NOT NULL,
		definition         JSONB NOT NULL DEFAULT '{}',
		deployment_status  TEXT NOT NULL DEFAULT 'PENDING',
		engine_workflow_id TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS workflows_tenant_idx ON workflows (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS workflows_slot_idx ON workflows (slot_id)`,
}

// Migrate применяет схему БД.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
