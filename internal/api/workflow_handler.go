package api

import (
	"net/http"
)

// GetWorkflow возвращает workflow tenant'а.
// GET /api/v1/tenants/{tenantId}/workflow
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		BadRequest(w, "tenant id is required")
		return
	}

	wf, err := h.workflowRepo.GetByTenant(r.Context(), tenantID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// TeardownWorkflow удаляет workflow tenant'а из engine'а и
// освобождает слот.
// DELETE /api/v1/tenants/{tenantId}/workflow
func (h *Handler) TeardownWorkflow(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		BadRequest(w, "tenant id is required")
		return
	}

	err := h.coordinator.Teardown(r.Context(), tenantID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	NoContent(w)
}
