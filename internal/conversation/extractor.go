package conversation

import (
	"strings"

	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
)

// Маркеры условий выполнения в реплике пользователя.
var conditionMarkers = []string{"only if", "only when", "unless", "but only"}

// minActionScore — минимальное пересечение ключевых слов, чтобы
// засчитать action/output/source (одиночное слово вроде "email"
// всплывает почти в любой реплике).
const minActionScore = 2

// Extraction — поля scope, извлечённые из одной реплики.
type Extraction struct {
	Trigger     string
	Actions     []string
	DataSources []string
	Outputs     []string
	Conditions  []string

	// Matched — суммарное число сопоставленных возможностей.
	// Ноль означает реплику вне предметной области.
	Matched int
}

// Extract сопоставляет реплику с каталогом и извлекает поля scope.
//
// Поля хранят канонические идентификаторы возможностей, поэтому
// последующая проверка валидатором даёт точные совпадения. Реплика
// без единого совпадения считается не относящейся к автоматизациям.
func Extract(c *catalog.Catalog, message string) Extraction {
	tokens := catalog.Tokenize(message)
	var ex Extraction

	// Триггер: лучшая возможность вида trigger.
	if id, score := bestByKind(c, catalog.KindTrigger, tokens); score > 0 {
		ex.Trigger = id
		ex.Matched++
	}

	for _, cap := range c.ByKind(catalog.KindAction) {
		if cap.Overlap(tokens) >= minActionScore {
			ex.Actions = append(ex.Actions, cap.ID)
			ex.Matched++
		}
	}
	for _, cap := range c.ByKind(catalog.KindOutput) {
		if cap.Overlap(tokens) >= minActionScore {
			ex.Outputs = append(ex.Outputs, cap.ID)
			ex.Matched++
		}
	}
	for _, cap := range c.ByKind(catalog.KindSource) {
		if cap.Overlap(tokens) >= minActionScore {
			ex.DataSources = append(ex.DataSources, cap.ID)
			ex.Matched++
		}
	}

	if cond := extractCondition(message); cond != "" {
		ex.Conditions = append(ex.Conditions, cond)
	}

	return ex
}

// Apply вносит извлечённые поля в scope, не затирая уже собранные.
func (ex Extraction) Apply(scope *domain.ScopeDraft) {
	if scope.Trigger == "" && ex.Trigger != "" {
		scope.Trigger = ex.Trigger
	}
	scope.Actions = mergeUnique(scope.Actions, ex.Actions)
	scope.Outputs = mergeUnique(scope.Outputs, ex.Outputs)
	scope.DataSources = mergeUnique(scope.DataSources, ex.DataSources)
	scope.Conditions = mergeUnique(scope.Conditions, ex.Conditions)
}

// bestByKind возвращает возможность вида kind с наибольшим
// пересечением ключевых слов.
func bestByKind(c *catalog.Catalog, kind catalog.Kind, tokens []string) (string, int) {
	bestID, bestScore := "", 0
	for _, cap := range c.ByKind(kind) {
		if score := cap.Overlap(tokens); score > bestScore {
			bestID, bestScore = cap.ID, score
		}
	}
	return bestID, bestScore
}

// extractCondition вырезает условие выполнения из реплики.
func extractCondition(message string) string {
	lower := strings.ToLower(message)
	for _, marker := range conditionMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			cond := strings.TrimSpace(message[idx:])
			cond = strings.TrimRight(cond, ".!?")
			if cond != "" {
				return cond
			}
		}
	}
	return ""
}

// mergeUnique добавляет новые значения, сохраняя порядок.
func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range incoming {
		if !seen[v] {
			existing = append(existing, v)
			seen[v] = true
		}
	}
	return existing
}
