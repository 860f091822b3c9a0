package domain

import (
	"time"

	"github.com/google/uuid"
)

// Обязательные поля ScopeDraft.
// data sources и conditions — опциональны и молча пропускаются,
// если пользователь не назвал их за отведённое число реплик.
const (
	FieldTrigger = "trigger"
	FieldActions = "actions"
	FieldOutputs = "outputs"
)

// ConversationSession — диалоговая сессия одного tenant'а.
//
// Сессия создаётся первым сообщением пользователя, проходит фазы
// (см. Phase) и архивируется в COMPLETED/CANCELLED/FAILED.
// Мутируется только оркестратором диалога, строго последовательно
// в рамках одной сессии.
type ConversationSession struct {
	// ID — уникальный идентификатор сессии.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец сессии. Приходит уже аутентифицированным.
	TenantID string `json:"tenant_id"`

	// Phase — текущая фаза диалога.
	Phase Phase `json:"phase"`

	// Turns — упорядоченная последовательность реплик.
	// Реплики неизменяемы после добавления.
	Turns []Turn `json:"turns"`

	// Scope — собираемое описание автоматизации.
	Scope ScopeDraft `json:"scope"`

	// CreatedAt — время создания сессии.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней реплики (для таймаута бездействия).
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn — одна реплика диалога.
type Turn struct {
	// Role — кто говорит: user или agent.
	Role TurnRole `json:"role"`

	// Content — текст реплики.
	Content string `json:"content"`

	// Timestamp — время реплики.
	Timestamp time.Time `json:"timestamp"`
}

// NewSession создаёт сессию в фазе GREETING.
func NewSession(id uuid.UUID, tenantID string) *ConversationSession {
	now := time.Now()
	return &ConversationSession{
		ID:        id,
		TenantID:  tenantID,
		Phase:     PhaseGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append добавляет реплику и обновляет UpdatedAt.
func (s *ConversationSession) Append(role TurnRole, content string) Turn {
	turn := Turn{Role: role, Content: content, Timestamp: time.Now()}
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = turn.Timestamp
	return turn
}

// IsIdle проверяет, бездействует ли сессия дольше timeout.
func (s *ConversationSession) IsIdle(now time.Time, timeout time.Duration) bool {
	if s.Phase.IsTerminal() {
		return false
	}
	return now.Sub(s.UpdatedAt) >= timeout
}

// ScopeDraft — структурированное описание автоматизации.
//
// Заполняется инкрементально: оркестратор извлекает поля из реплик
// пользователя и спрашивает только о недостающих обязательных полях.
type ScopeDraft struct {
	// Trigger — что запускает автоматизацию (обязательное).
	Trigger string `json:"trigger,omitempty"`

	// Actions — какие действия выполнять (обязательное, минимум одно).
	Actions []string `json:"actions,omitempty"`

	// DataSources — откуда брать данные (опциональное).
	DataSources []string `json:"data_sources,omitempty"`

	// Outputs — куда доставлять результат (обязательное, минимум одно).
	Outputs []string `json:"outputs,omitempty"`

	// Conditions — условия выполнения (опциональное).
	Conditions []string `json:"conditions,omitempty"`

	// ScopingTurns — сколько реплик уже потрачено на сбор scope.
	// После scopingTurnLimit опциональные поля перестают ожидаться.
	ScopingTurns int `json:"scoping_turns,omitempty"`
}

// Missing возвращает список недостающих обязательных полей.
func (d *ScopeDraft) Missing() []string {
	var missing []string
	if d.Trigger == "" {
		missing = append(missing, FieldTrigger)
	}
	if len(d.Actions) == 0 {
		missing = append(missing, FieldActions)
	}
	if len(d.Outputs) == 0 {
		missing = append(missing, FieldOutputs)
	}
	return missing
}

// IsComplete возвращает true, если все обязательные поля заполнены.
func (d *ScopeDraft) IsComplete() bool {
	return len(d.Missing()) == 0
}

// Elements возвращает все заявленные элементы scope для проверки
// по каталогу: trigger, каждое action и каждый output.
func (d *ScopeDraft) Elements() []string {
	elems := make([]string, 0, 1+len(d.Actions)+len(d.Outputs))
	if d.Trigger != "" {
		elems = append(elems, d.Trigger)
	}
	elems = append(elems, d.Actions...)
	elems = append(elems, d.Outputs...)
	return elems
}

// FeasibilityReport — результат проверки ScopeDraft по каталогу.
type FeasibilityReport struct {
	// Feasible — true, если все элементы scope сопоставлены с каталогом.
	Feasible bool `json:"feasible"`

	// Mapped — идентификаторы сопоставленных возможностей.
	// Непустой тогда и только тогда, когда Feasible=true.
	Mapped []string `json:"mapped,omitempty"`

	// Unmapped — элементы scope, для которых не нашлось возможности.
	Unmapped []string `json:"unmapped,omitempty"`

	// Warnings — несущественные замечания (нечёткие совпадения и т.п.).
	Warnings []string `json:"warnings,omitempty"`

	// Complexity — оценка сложности по количеству возможностей.
	Complexity Complexity `json:"complexity"`

	// Alternatives — предлагаемые замены для несопоставленных элементов.
	// Непустой, если Feasible=false и каталог непуст.
	Alternatives []string `json:"alternatives,omitempty"`
}
