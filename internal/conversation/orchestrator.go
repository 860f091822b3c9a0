package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/llm"
	"github.com/shaiso/Concierge/internal/mq"
	"github.com/shaiso/Concierge/internal/repo"
	"github.com/shaiso/Concierge/internal/telemetry"
)

// SessionStore — операции хранилища сессий.
// Реализуется repo.SessionRepo.
type SessionStore interface {
	Create(ctx context.Context, session *domain.ConversationSession) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*domain.ConversationSession, error)
	Update(ctx context.Context, session *domain.ConversationSession) error
	ListIdle(ctx context.Context, cutoff time.Time, limit int) ([]domain.ConversationSession, error)
}

// SlotManager — выделение и освобождение слотов.
// Реализуется allocator.Allocator.
type SlotManager interface {
	Acquire(ctx context.Context, tenantID string) (*domain.Slot, error)
	Release(ctx context.Context, tenantID string) (*domain.Slot, error)
}

// Deployer — деплой подтверждённого scope.
// Реализуется deploy.Coordinator.
type Deployer interface {
	Deploy(ctx context.Context, tenantID, slotID string, scope *domain.ScopeDraft) (*domain.Workflow, error)
}

// idleSweepBatch — размер одной порции sweep'а отмены.
const idleSweepBatch = 100

// Orchestrator ведёт диалоговые сессии.
//
// Реплики одной сессии обрабатываются строго последовательно
// (мьютекс на ключ сессии); разные сессии — параллельно.
type Orchestrator struct {
	sessions  SessionStore
	catalog   *catalog.Catalog
	validator *catalog.Validator
	slots     SlotManager
	deployer  Deployer
	completer llm.Completer
	publisher *mq.Publisher
	logger    *slog.Logger

	idleTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock — мьютекс сессии со счётчиком держателей и ожидающих.
// Запись живёт в карте, только пока refs > 0.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Config — конфигурация оркестратора.
type Config struct {
	Sessions  SessionStore
	Catalog   *catalog.Catalog
	Slots     SlotManager
	Deployer  Deployer
	Completer llm.Completer
	Publisher *mq.Publisher
	Logger    *slog.Logger

	// IdleTimeout — бездействие, после которого сессия отменяется.
	IdleTimeout time.Duration
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions:    cfg.Sessions,
		catalog:     cfg.Catalog,
		validator:   catalog.NewValidator(cfg.Catalog),
		slots:       cfg.Slots,
		deployer:    cfg.Deployer,
		completer:   cfg.Completer,
		publisher:   cfg.Publisher,
		logger:      logger,
		idleTimeout: cfg.IdleTimeout,
		locks:       make(map[string]*sessionLock),
	}
}

// Advance обрабатывает одну реплику пользователя.
//
// Несуществующая сессия создаётся в GREETING первым же сообщением.
// Возвращает сессию после обработки; последняя реплика в Turns —
// ответ агента. ErrSessionClosed для терминальных сессий.
func (o *Orchestrator) Advance(ctx context.Context, tenantID string, sessionID uuid.UUID, message string) (*domain.ConversationSession, error) {
	unlock := o.lockSession(tenantID, sessionID)
	defer unlock()

	created := false
	session, err := o.sessions.Get(ctx, tenantID, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		session = domain.NewSession(sessionID, tenantID)
		created = true
	} else if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if session.Phase.IsTerminal() {
		return nil, fmt.Errorf("%w: phase %s", ErrSessionClosed, session.Phase)
	}

	session.Append(domain.RoleUser, message)

	var reply string
	if isCancellation(message) {
		session.Phase = domain.PhaseCancelled
		reply = replyCancelled
	} else {
		reply = o.handle(ctx, session, message)
	}

	session.Append(domain.RoleAgent, o.polish(ctx, reply))

	if created {
		err = o.sessions.Create(ctx, session)
	} else {
		err = o.sessions.Update(ctx, session)
	}
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	telemetry.SessionsAdvanced.WithLabelValues(string(session.Phase)).Inc()
	logger := telemetry.WithSessionID(telemetry.WithTenantID(o.logger, tenantID), sessionID.String())
	logger.Info("session advanced",
		"phase", session.Phase,
		"turns", len(session.Turns),
	)
	o.publisher.Publish(ctx, mq.EventSessionAdvanced, tenantID, map[string]any{
		"session_id": sessionID.String(),
		"phase":      string(session.Phase),
	})
	return session, nil
}

// handle диспетчеризует реплику по текущей фазе.
func (o *Orchestrator) handle(ctx context.Context, session *domain.ConversationSession, message string) string {
	switch session.Phase {
	case domain.PhaseGreeting:
		return o.handleGreeting(session, message)
	case domain.PhaseScoping:
		return o.handleScoping(session, message)
	case domain.PhaseValidating:
		return o.handleValidating(ctx, session, message)
	case domain.PhaseCreating:
		// Сессия застряла в CREATING (обрыв во время деплоя):
		// возвращаемся к подтверждению.
		session.Phase = domain.PhaseValidating
		return replyDeployInterrupted
	case domain.PhaseFailed:
		return o.handleFailed(session, message)
	default:
		o.logger.Error("unexpected session phase", "phase", session.Phase)
		return replyRedirect
	}
}

// CancelIdle отменяет сессии, бездействующие дольше IdleTimeout.
// Возвращает количество отменённых сессий.
func (o *Orchestrator) CancelIdle(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-o.idleTimeout)
	idle, err := o.sessions.ListIdle(ctx, cutoff, idleSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	cancelled := 0
	for i := range idle {
		session := &idle[i]
		unlock := o.lockSession(session.TenantID, session.ID)

		session.Phase = domain.PhaseCancelled
		session.Append(domain.RoleAgent, replyIdleCancelled)
		if err := o.sessions.Update(ctx, session); err != nil {
			unlock()
			o.logger.Error("cancel idle session",
				"session_id", session.ID, "error", err)
			continue
		}
		unlock()

		cancelled++
		telemetry.SessionsAdvanced.WithLabelValues(string(domain.PhaseCancelled)).Inc()
		o.publisher.Publish(ctx, mq.EventSessionAdvanced, session.TenantID, map[string]any{
			"session_id": session.ID.String(),
			"phase":      string(domain.PhaseCancelled),
			"reason":     "idle",
		})
	}

	if cancelled > 0 {
		o.logger.Info("idle sessions cancelled", "count", cancelled)
	}
	return cancelled, nil
}

// polish переформулирует черновик ответа через Completer, если тот есть.
func (o *Orchestrator) polish(ctx context.Context, draft string) string {
	if o.completer == nil {
		return draft
	}
	polished, err := o.completer.Complete(ctx, completerSystemPrompt, draft)
	if err != nil {
		o.logger.Warn("completion failed, using draft reply", "error", err)
		return draft
	}
	return polished
}

// lockSession берёт мьютекс сессии. После освобождения последним
// держателем запись удаляется из карты: карта хранит только сессии,
// обрабатываемые прямо сейчас, и не растёт со временем.
func (o *Orchestrator) lockSession(tenantID string, sessionID uuid.UUID) func() {
	key := tenantID + "/" + sessionID.String()

	o.mu.Lock()
	l, ok := o.locks[key]
	if !ok {
		l = &sessionLock{}
		o.locks[key] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, key)
		}
		o.mu.Unlock()
	}
}
