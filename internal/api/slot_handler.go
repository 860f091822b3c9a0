package api

import (
	"net/http"
	"strconv"
)

// defaultAuditLimit — лимит записей журнала по умолчанию.
const defaultAuditLimit = 50

// ListSlots возвращает все слоты пула в порядке матрицы.
// GET /api/v1/slots
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.slotRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]SlotResponse, len(slots))
	for i, s := range slots {
		result[i] = SlotFromDomain(s)
	}
	List(w, result, len(result))
}

// GetSlot возвращает слот по идентификатору.
// GET /api/v1/slots/{id}
func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.slotRepo.Get(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "slot not found") {
		return
	}

	Success(w, SlotFromDomain(*slot))
}

// ListSlotAudit возвращает записи audit-журнала слота, новые первыми.
// GET /api/v1/slots/{id}/audit
func (h *Handler) ListSlotAudit(w http.ResponseWriter, r *http.Request) {
	slotID := r.PathValue("id")

	// Слот должен существовать, иначе пустой журнал неотличим от опечатки.
	if _, err := h.slotRepo.Get(r.Context(), slotID); err != nil {
		HandleRepoError(w, h.logger, err, "slot not found")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := h.slotRepo.ListAudit(r.Context(), slotID, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = AuditFromDomain(e)
	}
	List(w, result, len(result))
}
