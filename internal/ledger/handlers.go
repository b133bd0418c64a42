package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasir-desk/internal/common"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Handler exposes the ledger read path.
type Handler struct {
	Svc *Service
}

// Routes mounts the ledger endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/payments", h.Payments)
	r.Get("/cheques", h.Cheques)
	r.Get("/contacts/{contactId}/balance", h.ContactBalance)
}

// Payments handles GET /ledger/payments.
func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Svc.Payments)
}

// Cheques handles GET /ledger/cheques.
func (h *Handler) Cheques(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Svc.Cheques)
}

// ContactBalance handles GET /ledger/contacts/{contactId}/balance.
func (h *Handler) ContactBalance(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "ledger service not configured", nil)
		return
	}
	contactID := strings.TrimSpace(chi.URLParam(r, "contactId"))
	if contactID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "contact id required", nil)
		return
	}
	body, err := h.Svc.ContactBalance(r.Context(), contactID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	relay(w, body)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, Filter) (json.RawMessage, error)) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "ledger service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage, maxPerPage)
	q := r.URL.Query()
	f := Filter{
		Page:      page,
		PerPage:   perPage,
		Search:    q.Get("search"),
		ContactID: q.Get("contact_id"),
		Method:    strings.ToLower(q.Get("payment_method")),
		Status:    q.Get("status"),
		From:      q.Get("start_date"),
		To:        q.Get("end_date"),
	}
	if err := common.ValidateStruct(f); err != nil {
		common.WriteError(w, err)
		return
	}
	body, err := fetch(r.Context(), f)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	relay(w, body)
}

// relay writes the backend body unchanged, pagination metadata included.
func relay(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
