package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Sessions
	mux.Handle("POST /api/v1/tenants/{tenantId}/sessions/{sessionId}/messages",
		chain(http.HandlerFunc(h.PostMessage)))
	mux.Handle("GET /api/v1/tenants/{tenantId}/sessions",
		chain(http.HandlerFunc(h.ListSessions)))
	mux.Handle("GET /api/v1/tenants/{tenantId}/sessions/{sessionId}",
		chain(http.HandlerFunc(h.GetSession)))

	// Slots
	mux.Handle("GET /api/v1/slots", chain(http.HandlerFunc(h.ListSlots)))
	mux.Handle("GET /api/v1/slots/{id}", chain(http.HandlerFunc(h.GetSlot)))
	mux.Handle("GET /api/v1/slots/{id}/audit", chain(http.HandlerFunc(h.ListSlotAudit)))

	// Workflow tenant'а
	mux.Handle("GET /api/v1/tenants/{tenantId}/workflow",
		chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("DELETE /api/v1/tenants/{tenantId}/workflow",
		chain(http.HandlerFunc(h.TeardownWorkflow)))
}
