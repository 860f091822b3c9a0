package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Concierge/internal/domain"
)

// SessionRepo — репозиторий диалоговых сессий (conversation store).
//
// Сессии ключуются парой (tenant_id, session_id).
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Create сохраняет новую сессию.
func (r *SessionRepo) Create(ctx context.Context, session *domain.ConversationSession) error {
	turnsJSON, scopeJSON, err := marshalSession(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, tenant_id, phase, turns, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.TenantID,
		session.Phase,
		turnsJSON,
		scopeJSON,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get возвращает сессию по ключу (tenant_id, session_id).
func (r *SessionRepo) Get(ctx context.Context, tenantID string, id uuid.UUID) (*domain.ConversationSession, error) {
	query := `
		SELECT id, tenant_id, phase, turns, scope, created_at, updated_at
		FROM sessions
		WHERE tenant_id = $1 AND id = $2
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, tenantID, id))
}

// Update сохраняет фазу, реплики и scope сессии.
func (r *SessionRepo) Update(ctx context.Context, session *domain.ConversationSession) error {
	turnsJSON, scopeJSON, err := marshalSession(session)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET phase = $3, turns = $4, scope = $5, updated_at = $6
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		session.TenantID,
		session.ID,
		session.Phase,
		turnsJSON,
		scopeJSON,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant возвращает сессии tenant'а, новые первыми.
func (r *SessionRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.ConversationSession, error) {
	query := `
		SELECT id, tenant_id, phase, turns, scope, created_at, updated_at
		FROM sessions
		WHERE tenant_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	return r.collectSessions(rows)
}

// ListIdle возвращает незавершённые сессии, бездействующие с cutoff.
// Используется sweep'ом отмены по таймауту.
func (r *SessionRepo) ListIdle(ctx context.Context, cutoff time.Time, limit int) ([]domain.ConversationSession, error) {
	query := `
		SELECT id, tenant_id, phase, turns, scope, created_at, updated_at
		FROM sessions
		WHERE updated_at < $1 AND phase NOT IN ($2, $3)
		ORDER BY updated_at ASC
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query, cutoff,
		domain.PhaseCompleted, domain.PhaseCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()

	return r.collectSessions(rows)
}

// --- Helpers ---

func marshalSession(session *domain.ConversationSession) (turns, scope []byte, err error) {
	turns, err = json.Marshal(session.Turns)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal turns: %w", err)
	}
	scope, err = json.Marshal(session.Scope)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal scope: %w", err)
	}
	return turns, scope, nil
}

func (r *SessionRepo) scanSession(row pgx.Row) (*domain.ConversationSession, error) {
	var session domain.ConversationSession
	var turnsJSON, scopeJSON []byte

	err := row.Scan(
		&session.ID,
		&session.TenantID,
		&session.Phase,
		&turnsJSON,
		&scopeJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := json.Unmarshal(turnsJSON, &session.Turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns: %w", err)
	}
	if err := json.Unmarshal(scopeJSON, &session.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal scope: %w", err)
	}

	return &session, nil
}

func (r *SessionRepo) collectSessions(rows pgx.Rows) ([]domain.ConversationSession, error) {
	var sessions []domain.ConversationSession
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}
