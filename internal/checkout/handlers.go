package checkout

import (
	"net/http"

	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/session"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc *Service
}

// Checkout handles POST /sessions/{id}/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	id, ok := session.PathID(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Submit(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}
