package catalog

import (
	"fmt"
	"sort"

	"github.com/shaiso/Concierge/internal/domain"
)

// Пороги оценки сложности по количеству сопоставленных возможностей.
const (
	simpleMax   = 3
	moderateMax = 8
)

// maxAlternatives — сколько альтернатив предлагать на несопоставленный элемент.
const maxAlternatives = 3

// minFuzzyScore — минимальное пересечение ключевых слов для нечёткого
// совпадения. Единственный общий токен (например "trigger" из частей
// идентификатора) совпадением не считается.
const minFuzzyScore = 2

// Validator сопоставляет ScopeDraft с каталогом возможностей.
type Validator struct {
	catalog *Catalog
}

// NewValidator создаёт валидатор над каталогом.
func NewValidator(c *Catalog) *Validator {
	return &Validator{catalog: c}
}

// Validate проверяет осуществимость полного ScopeDraft.
//
// Для каждого обязательного элемента (trigger, каждое action, каждый
// output) ищется наилучшее совпадение в каталоге: точный идентификатор
// приоритетнее пересечения ключевых слов. feasible ⇔ все элементы
// сопоставлены. Повторный вызов с тем же входом даёт тот же результат.
func (v *Validator) Validate(draft *domain.ScopeDraft) (*domain.FeasibilityReport, error) {
	if !draft.IsComplete() {
		return nil, fmt.Errorf("%w: missing %v", ErrIncompleteScope, draft.Missing())
	}

	report := &domain.FeasibilityReport{}

	for _, elem := range draft.Elements() {
		cap, exact, ok := v.match(elem)
		if !ok {
			report.Unmapped = append(report.Unmapped, elem)
			report.Alternatives = appendUnique(report.Alternatives, v.Alternatives(elem, maxAlternatives)...)
			continue
		}

		report.Mapped = append(report.Mapped, cap.ID)
		if !exact {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%q matched %q by keyword overlap", elem, cap.ID))
		}
	}

	// Опциональные источники данных не влияют на осуществимость,
	// но участвуют в оценке сложности.
	for _, src := range draft.DataSources {
		if cap, _, ok := v.match(src); ok {
			report.Mapped = append(report.Mapped, cap.ID)
		} else {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("data source %q is not in the catalog, engine defaults apply", src))
		}
	}

	report.Feasible = len(report.Unmapped) == 0
	if !report.Feasible {
		report.Mapped = nil
	}
	report.Complexity = complexity(len(report.Mapped))

	return report, nil
}

// match ищет возможность для формулировки элемента.
// Возвращает (возможность, точное ли совпадение, найдено ли).
func (v *Validator) match(elem string) (Capability, bool, bool) {
	if cap, err := v.catalog.Get(elem); err == nil {
		return cap, true, true
	}

	tokens := Tokenize(elem)
	var best Capability
	bestScore := 0
	for _, cap := range v.catalog.All() {
		if score := cap.Overlap(tokens); score > bestScore {
			best, bestScore = cap, score
		}
	}
	if bestScore < minFuzzyScore {
		return Capability{}, false, false
	}
	return best, false, true
}

// Alternatives ранжирует каталог по пересечению ключевых слов с
// формулировкой и возвращает до limit ближайших идентификаторов.
// Непустой результат гарантирован для непустого каталога.
func (v *Validator) Alternatives(elem string, limit int) []string {
	tokens := Tokenize(elem)

	type scored struct {
		id    string
		score int
	}
	all := v.catalog.All()
	ranked := make([]scored, 0, len(all))
	for _, cap := range all {
		ranked = append(ranked, scored{id: cap.ID, score: cap.Overlap(tokens)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	if limit > len(ranked) {
		limit = len(ranked)
	}
	ids := make([]string, 0, limit)
	for _, r := range ranked[:limit] {
		ids = append(ids, r.id)
	}
	return ids
}

// complexity выводит оценку сложности из количества возможностей.
func complexity(mapped int) domain.Complexity {
	switch {
	case mapped <= simpleMax:
		return domain.ComplexitySimple
	case mapped <= moderateMax:
		return domain.ComplexityModerate
	default:
		return domain.ComplexityComplex
	}
}

// appendUnique добавляет значения, которых ещё нет в списке.
func appendUnique(list []string, values ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			list = append(list, v)
			seen[v] = true
		}
	}
	return list
}
