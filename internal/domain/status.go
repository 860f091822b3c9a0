package domain

// Phase — фаза диалоговой сессии.
//
// Жизненный цикл:
//
//	GREETING → SCOPING → VALIDATING → CREATING → COMPLETED
//	              ↑__________|            |
//	              (infeasible)            ↘ FAILED → (возврат в SCOPING)
//	любая фаза → CANCELLED (по таймауту бездействия)
type Phase string

const (
	// PhaseGreeting — сессия создана, пользователь ещё не заявил намерение.
	PhaseGreeting Phase = "GREETING"

	// PhaseScoping — идёт сбор обязательных полей ScopeDraft.
	PhaseScoping Phase = "SCOPING"

	// PhaseValidating — scope собран и проверен по каталогу, ожидается подтверждение.
	PhaseValidating Phase = "VALIDATING"

	// PhaseCreating — выделяется слот и выполняется деплой во внешний engine.
	PhaseCreating Phase = "CREATING"

	// PhaseCompleted — workflow развёрнут, сессия завершена успешно.
	PhaseCompleted Phase = "COMPLETED"

	// PhaseCancelled — сессия отменена (таймаут бездействия или явная отмена).
	PhaseCancelled Phase = "CANCELLED"

	// PhaseFailed — деплой завершился постоянной ошибкой.
	PhaseFailed Phase = "FAILED"
)

// IsTerminal возвращает true, если фаза финальная (сессия архивируется).
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseCancelled:
		return true
	default:
		return false
	}
}

// SlotStatus — статус слота исполнения.
//
// Жизненный цикл (слот никогда не удаляется, только переиспользуется):
//
//	AVAILABLE → ACTIVE → AVAILABLE → ...
type SlotStatus string

const (
	// SlotStatusAvailable — слот свободен и может быть назначен.
	SlotStatusAvailable SlotStatus = "AVAILABLE"

	// SlotStatusActive — слот эксклюзивно закреплён за tenant'ом.
	SlotStatusActive SlotStatus = "ACTIVE"

	// SlotStatusArchived — слот выведен из пула (ручное решение оператора).
	SlotStatusArchived SlotStatus = "ARCHIVED"
)

// AuditAction — действие в журнале назначений слотов.
type AuditAction string

const (
	// AuditAssigned — слот назначен tenant'у.
	AuditAssigned AuditAction = "ASSIGNED"

	// AuditUnassigned — слот освобождён.
	AuditUnassigned AuditAction = "UNASSIGNED"

	// AuditVerified — слот прошёл проверку согласованности (reconciler).
	AuditVerified AuditAction = "VERIFIED"

	// AuditWarning — обнаружено расхождение, требуется внимание оператора.
	AuditWarning AuditAction = "WARNING"
)

// DeploymentStatus — статус деплоя workflow во внешний engine.
//
// Жизненный цикл:
//
//	PENDING → DEPLOYED
//	        ↘ FAILED
type DeploymentStatus string

const (
	// DeploymentPending — workflow скомпилирован, но ещё не принят engine'ом.
	DeploymentPending DeploymentStatus = "PENDING"

	// DeploymentDeployed — engine принял и активировал workflow.
	DeploymentDeployed DeploymentStatus = "DEPLOYED"

	// DeploymentFailed — engine отклонил workflow или retry исчерпаны.
	DeploymentFailed DeploymentStatus = "FAILED"
)

// Complexity — оценка сложности автоматизации.
type Complexity string

const (
	// ComplexitySimple — до 3 задействованных возможностей.
	ComplexitySimple Complexity = "simple"

	// ComplexityModerate — от 4 до 8 возможностей.
	ComplexityModerate Complexity = "moderate"

	// ComplexityComplex — более 8 возможностей.
	ComplexityComplex Complexity = "complex"
)

// TurnRole — роль автора реплики в диалоге.
type TurnRole string

const (
	// RoleUser — реплика пользователя.
	RoleUser TurnRole = "user"

	// RoleAgent — реплика агента.
	RoleAgent TurnRole = "agent"
)
