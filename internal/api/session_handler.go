package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// defaultSessionLimit — лимит списка сессий по умолчанию.
const defaultSessionLimit = 20

// PostMessage обрабатывает реплику пользователя в сессии.
// POST /api/v1/tenants/{tenantId}/sessions/{sessionId}/messages
//
// Несуществующая сессия создаётся этим же запросом: клиент сам
// выбирает UUID сессии и шлёт в неё первое сообщение.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		BadRequest(w, "tenant id is required")
		return
	}

	sessionID, err := uuid.Parse(r.PathValue("sessionId"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		BadRequest(w, "message is required")
		return
	}

	session, err := h.orchestrator.Advance(r.Context(), tenantID, sessionID, req.Message)
	if HandleRepoError(w, h.logger, err, "session not found") {
		return
	}

	reply := ""
	if len(session.Turns) > 0 {
		reply = session.Turns[len(session.Turns)-1].Content
	}

	Success(w, MessageResponse{
		SessionID: session.ID,
		Phase:     session.Phase,
		Reply:     reply,
	})
}

// ListSessions возвращает сессии tenant'а, новые первыми.
// GET /api/v1/tenants/{tenantId}/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		BadRequest(w, "tenant id is required")
		return
	}

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	sessions, err := h.sessionRepo.ListByTenant(r.Context(), tenantID, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		result[i] = SessionFromDomain(s)
	}
	List(w, result, len(result))
}

// GetSession возвращает сессию с полной историей реплик.
// GET /api/v1/tenants/{tenantId}/sessions/{sessionId}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	sessionID, err := uuid.Parse(r.PathValue("sessionId"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	session, err := h.sessionRepo.Get(r.Context(), tenantID, sessionID)
	if HandleRepoError(w, h.logger, err, "session not found") {
		return
	}

	Success(w, SessionFromDomain(*session))
}
