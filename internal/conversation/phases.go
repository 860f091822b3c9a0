package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Concierge/internal/allocator"
	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
)

// Шаблоны реплик агента. Содержание детерминировано; llm.Completer
// при наличии лишь переформулирует.
const (
	replyRedirect = "I set up workflow automations: tell me what should trigger one, " +
		"what it should do, and where to deliver the result."

	replyCancelled = "Understood, I have cancelled this request. " +
		"Start a new session whenever you want to automate something."

	replyIdleCancelled = "This session was cancelled after a period of inactivity. " +
		"Start a new one whenever you are ready."

	replyCapacity = "Your automation is confirmed, but every execution slot is " +
		"currently occupied. Please try again a bit later — nothing was lost."

	replyDeployInterrupted = "The previous deployment attempt was interrupted. " +
		"Say \"confirm\" to try again, or tell me what to change."

	replyAskChanges = "No problem — what should be different?"

	completerSystemPrompt = "You rewrite a draft reply from a workflow automation " +
		"assistant so it sounds natural and friendly. Keep every fact, identifier " +
		"and instruction from the draft. Reply with the rewritten text only."
)

// scopingTurnLimit — после стольких scoping-реплик агент перестаёт
// упоминать опциональные поля.
const scopingTurnLimit = 3

// handleGreeting обрабатывает первую содержательную реплику.
func (o *Orchestrator) handleGreeting(session *domain.ConversationSession, message string) string {
	ex := Extract(o.catalog, message)
	if ex.Matched == 0 {
		// Намерения пока нет — остаёмся в приветствии.
		return replyRedirect
	}

	ex.Apply(&session.Scope)
	return o.progressScope(session)
}

// handleScoping дополняет scope из реплики и двигает сессию дальше.
func (o *Orchestrator) handleScoping(session *domain.ConversationSession, message string) string {
	ex := Extract(o.catalog, message)

	if ex.Matched == 0 && len(ex.Conditions) == 0 {
		// Каталог реплику не узнал. Если мы ждём конкретное поле —
		// принимаем формулировку пользователя как есть: валидатор
		// честно скажет, осуществима ли она.
		missing := session.Scope.Missing()
		if len(missing) == 0 {
			return replyRedirect
		}
		applyRawField(&session.Scope, missing[0], message)
	} else {
		ex.Apply(&session.Scope)
	}

	return o.progressScope(session)
}

// handleValidating обрабатывает ответ на сводку: подтверждение,
// отказ или уточнение.
func (o *Orchestrator) handleValidating(ctx context.Context, session *domain.ConversationSession, message string) string {
	switch {
	case isConfirmation(message):
		return o.deployConfirmed(ctx, session)
	case isRejection(message):
		session.Phase = domain.PhaseScoping
		return replyAskChanges
	default:
		// Уточнение: дополняем scope и показываем свежую сводку.
		ex := Extract(o.catalog, message)
		if ex.Matched == 0 && len(ex.Conditions) == 0 {
			return o.validationSummary(session) + "\n\nSay \"confirm\" to deploy, or tell me what to change."
		}
		ex.Apply(&session.Scope)
		return o.progressScope(session)
	}
}

// handleFailed — реплика после неудачного деплоя: корректируем scope
// и пробуем снова.
func (o *Orchestrator) handleFailed(session *domain.ConversationSession, message string) string {
	session.Phase = domain.PhaseScoping
	ex := Extract(o.catalog, message)
	if ex.Matched > 0 || len(ex.Conditions) > 0 {
		ex.Apply(&session.Scope)
	}
	return o.progressScope(session)
}

// progressScope решает, что делать с текущим scope: задать вопрос о
// недостающих полях или провести проверку осуществимости.
func (o *Orchestrator) progressScope(session *domain.ConversationSession) string {
	if !session.Scope.IsComplete() {
		session.Phase = domain.PhaseScoping
		session.Scope.ScopingTurns++
		return o.askMissing(&session.Scope)
	}
	return o.runValidation(session)
}

// runValidation проверяет собранный scope по каталогу.
func (o *Orchestrator) runValidation(session *domain.ConversationSession) string {
	report, err := o.validator.Validate(&session.Scope)
	if err != nil {
		o.logger.Error("validate scope", "session_id", session.ID, "error", err)
		session.Phase = domain.PhaseScoping
		return o.askMissing(&session.Scope)
	}

	if !report.Feasible {
		// Убираем неосуществимые элементы, чтобы пользователь
		// переформулировал их; сессия возвращается к сбору scope.
		pruneUnmapped(&session.Scope, report.Unmapped)
		session.Phase = domain.PhaseScoping
		session.Scope.ScopingTurns++

		var sb strings.Builder
		sb.WriteString("I cannot build part of this automation: ")
		sb.WriteString(strings.Join(quoteAll(report.Unmapped), ", "))
		sb.WriteString(" is not something the engine supports.")
		if len(report.Alternatives) > 0 {
			sb.WriteString(" Closest supported options: ")
			sb.WriteString(strings.Join(report.Alternatives, ", "))
			sb.WriteString(".")
		}
		sb.WriteString(" How would you like to proceed?")
		return sb.String()
	}

	session.Phase = domain.PhaseValidating
	return o.validationSummary(session) + "\n\nSay \"confirm\" to deploy, or tell me what to change."
}

// validationSummary строит сводку подтверждения по scope.
func (o *Orchestrator) validationSummary(session *domain.ConversationSession) string {
	scope := &session.Scope
	report, err := o.validator.Validate(scope)
	if err != nil {
		return replyRedirect
	}

	var sb strings.Builder
	sb.WriteString("Here is the automation I will create:\n")
	fmt.Fprintf(&sb, "- Trigger: %s\n", o.describe(scope.Trigger))
	for _, a := range scope.Actions {
		fmt.Fprintf(&sb, "- Action: %s\n", o.describe(a))
	}
	for _, out := range scope.Outputs {
		fmt.Fprintf(&sb, "- Delivery: %s\n", o.describe(out))
	}
	for _, src := range scope.DataSources {
		fmt.Fprintf(&sb, "- Data source: %s\n", o.describe(src))
	}
	for _, cond := range scope.Conditions {
		fmt.Fprintf(&sb, "- Condition: %s\n", cond)
	}
	fmt.Fprintf(&sb, "Estimated complexity: %s.", report.Complexity)
	for _, warning := range report.Warnings {
		sb.WriteString("\nNote: " + warning + ".")
	}
	return sb.String()
}

// deployConfirmed — фаза CREATING: выделение слота и деплой.
//
// Проходится синхронно: к возврату из обработчика сессия уже в
// COMPLETED или FAILED. Нехватка ёмкости пула не считается отказом —
// сессия остаётся в VALIDATING и подтверждение можно повторить позже.
func (o *Orchestrator) deployConfirmed(ctx context.Context, session *domain.ConversationSession) string {
	session.Phase = domain.PhaseCreating

	slot, err := o.slots.Acquire(ctx, session.TenantID)
	if errors.Is(err, allocator.ErrCapacityExceeded) {
		session.Phase = domain.PhaseValidating
		return replyCapacity
	}
	if err != nil {
		o.logger.Error("acquire slot", "tenant_id", session.TenantID, "error", err)
		session.Phase = domain.PhaseValidating
		return "Something went wrong while reserving capacity for your automation. " +
			"Say \"confirm\" to try again."
	}

	wf, err := o.deployer.Deploy(ctx, session.TenantID, slot.ID, &session.Scope)
	if err != nil {
		// Слот без работающего workflow не держим.
		if _, relErr := o.slots.Release(ctx, session.TenantID); relErr != nil {
			o.logger.Error("release slot after failed deploy",
				"tenant_id", session.TenantID, "slot_id", slot.ID, "error", relErr)
		}
		session.Phase = domain.PhaseFailed

		if errors.Is(err, engineapi.ErrRejected) {
			return "The automation engine rejected this workflow, so I could not deploy it. " +
				"Let's adjust the design — what should we change?"
		}
		return "The automation engine is not responding right now and the deployment " +
			"did not go through. Tell me to try again in a little while."
	}

	session.Phase = domain.PhaseCompleted
	return fmt.Sprintf("Done! Your automation %q is deployed and active. "+
		"It runs in slot %s; ask me anytime to change or remove it.", wf.Name, wf.SlotID)
}

// askMissing формулирует вопрос о недостающих обязательных полях.
func (o *Orchestrator) askMissing(scope *domain.ScopeDraft) string {
	missing := scope.Missing()

	questions := map[string]string{
		domain.FieldTrigger: "what should trigger the automation (a schedule, a webhook, an incoming email)?",
		domain.FieldActions: "what should it do once triggered?",
		domain.FieldOutputs: "where should the result be delivered (email, Slack, a spreadsheet)?",
	}

	var parts []string
	for _, field := range missing {
		parts = append(parts, questions[field])
	}

	reply := "Got it. To finish the design: " + strings.Join(parts, " And ")
	if scope.ScopingTurns <= 1 && scope.ScopingTurns < scopingTurnLimit {
		reply += " You can also mention data sources or conditions, but those are optional."
	}
	return reply
}

// describe возвращает описание возможности или исходную формулировку.
func (o *Orchestrator) describe(elem string) string {
	if cap, err := o.catalog.Get(elem); err == nil {
		return fmt.Sprintf("%s (%s)", cap.Description, cap.ID)
	}
	return elem
}

// applyRawField записывает формулировку пользователя в недостающее поле.
func applyRawField(scope *domain.ScopeDraft, field, message string) {
	value := strings.TrimSpace(message)
	switch field {
	case domain.FieldTrigger:
		scope.Trigger = value
	case domain.FieldActions:
		scope.Actions = append(scope.Actions, value)
	case domain.FieldOutputs:
		scope.Outputs = append(scope.Outputs, value)
	}
}

// pruneUnmapped убирает неосуществимые элементы из scope.
func pruneUnmapped(scope *domain.ScopeDraft, unmapped []string) {
	bad := make(map[string]bool, len(unmapped))
	for _, u := range unmapped {
		bad[u] = true
	}
	if bad[scope.Trigger] {
		scope.Trigger = ""
	}
	scope.Actions = dropAll(scope.Actions, bad)
	scope.Outputs = dropAll(scope.Outputs, bad)
}

// dropAll возвращает список без значений из bad.
func dropAll(list []string, bad map[string]bool) []string {
	kept := list[:0]
	for _, v := range list {
		if !bad[v] {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// quoteAll оборачивает значения в кавычки.
func quoteAll(values []string) []string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return quoted
}

// isCancellation распознаёт явную отмену.
func isCancellation(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	switch normalized {
	case "cancel", "stop", "abort", "quit", "never mind", "nevermind":
		return true
	}
	return strings.HasPrefix(normalized, "cancel ")
}

// isConfirmation распознаёт согласие со сводкой.
func isConfirmation(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimRight(message, ".!")))
	switch normalized {
	case "yes", "y", "yep", "ok", "okay", "confirm", "confirmed", "deploy",
		"do it", "go ahead", "sounds good", "yes please", "proceed":
		return true
	}
	return strings.HasPrefix(normalized, "confirm")
}

// isRejection распознаёт несогласие со сводкой.
func isRejection(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimRight(message, ".!")))
	switch normalized {
	case "no", "nope", "not yet", "wait", "hold on":
		return true
	}
	return strings.HasPrefix(normalized, "no,") || strings.HasPrefix(normalized, "no ")
}
