package api

import (
	"log/slog"

	"github.com/shaiso/Concierge/internal/conversation"
	"github.com/shaiso/Concierge/internal/deploy"
	"github.com/shaiso/Concierge/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orchestrator *conversation.Orchestrator
	coordinator  *deploy.Coordinator
	sessionRepo  *repo.SessionRepo
	slotRepo     *repo.SlotRepo
	workflowRepo *repo.WorkflowRepo
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator *conversation.Orchestrator
	Coordinator  *deploy.Coordinator
	SessionRepo  *repo.SessionRepo
	SlotRepo     *repo.SlotRepo
	WorkflowRepo *repo.WorkflowRepo
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		orchestrator: cfg.Orchestrator,
		coordinator:  cfg.Coordinator,
		sessionRepo:  cfg.SessionRepo,
		slotRepo:     cfg.SlotRepo,
		workflowRepo: cfg.WorkflowRepo,
		logger:       cfg.Logger,
	}
}
