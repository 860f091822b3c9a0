package deploy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
)

// Compile строит документ workflow из подтверждённого scope.
//
// Узлы идут цепочкой: trigger → actions → outputs; connections
// связывают соседей. Типы узлов — идентификаторы возможностей
// из отчёта валидатора, сопоставленные с элементами scope.
func Compile(tenantID, slotID string, scope *domain.ScopeDraft, validator *catalog.Validator) (*engineapi.WorkflowDefinition, error) {
	report, err := validator.Validate(scope)
	if err != nil {
		return nil, err
	}
	if !report.Feasible {
		return nil, fmt.Errorf("scope is not feasible: unmapped %v", report.Unmapped)
	}

	def := &engineapi.WorkflowDefinition{
		Name: WorkflowName(tenantID, scope.Trigger),
		Tags: []string{
			engineapi.SlotTag(slotID),
			engineapi.TenantTag(tenantID),
		},
		Connections: make(map[string][]string),
	}

	// Mapped хранит идентификаторы в порядке Elements():
	// trigger, actions, outputs, затем data sources.
	elements := scope.Elements()
	for i, capID := range report.Mapped {
		if i >= len(elements) {
			// Хвост Mapped — опциональные data sources: параметрами
			// первого узла, отдельных узлов не образуют.
			def.Nodes[0].Parameters["sources"] = scope.DataSources
			break
		}
		def.Nodes = append(def.Nodes, engineapi.Node{
			Name:       nodeName(capID, i),
			Type:       capID,
			Parameters: map[string]any{"description": elements[i]},
		})
	}

	// Условия выполнения — параметры trigger-узла.
	if len(scope.Conditions) > 0 {
		def.Nodes[0].Parameters["conditions"] = scope.Conditions
	}

	for i := 0; i < len(def.Nodes)-1; i++ {
		def.Connections[def.Nodes[i].Name] = []string{def.Nodes[i+1].Name}
	}

	return def, nil
}

// WorkflowName формирует имя workflow с префиксом tenant'а.
func WorkflowName(tenantID, trigger string) string {
	slug := strings.Join(catalog.Tokenize(trigger), "-")
	if slug == "" {
		slug = "automation"
	}
	const maxSlug = 40
	if len(slug) > maxSlug {
		slug = slug[:maxSlug]
	}
	return tenantID + "-" + slug
}

// nodeName формирует уникальное имя узла внутри workflow.
func nodeName(capID string, index int) string {
	return fmt.Sprintf("%s-%d", capID, index+1)
}

// definitionDocument переводит документ в форму хранения.
func definitionDocument(def *engineapi.WorkflowDefinition) (map[string]any, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return doc, nil
}
