package journal

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/kasir-desk/internal/common"
)

// Handler exposes recorded submit attempts.
type Handler struct {
	Store Store
}

// List handles GET /journal/{sessionId}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal is not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return
	}
	_, limit := common.ParsePagination(r, 100, 500)
	entries, err := h.Store.ListBySession(r.Context(), id, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, entries)
}
