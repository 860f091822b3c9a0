package conversation

import (
	"testing"

	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
)

func TestExtractConditionClause(t *testing.T) {
	ex := Extract(catalog.Default(),
		"Summarize the orders report and email it to me, but only if there are new orders")

	if len(ex.Conditions) != 1 {
		t.Fatalf("conditions = %v, want one clause", ex.Conditions)
	}
	if ex.Conditions[0] != "only if there are new orders" {
		t.Errorf("condition = %q", ex.Conditions[0])
	}
}

func TestApplyDoesNotOverwriteTrigger(t *testing.T) {
	scope := &domain.ScopeDraft{Trigger: "schedule-trigger"}

	ex := Extract(catalog.Default(), "also start it when an email arrives in the inbox")
	ex.Apply(scope)

	if scope.Trigger != "schedule-trigger" {
		t.Errorf("trigger overwritten to %q", scope.Trigger)
	}
}
