package catalog

import (
	"net/http"

	"github.com/noah-isme/kasir-desk/internal/common"
)

// Handler exposes the charge catalog.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Charges handles GET /api/v1/charges. refresh=true bypasses the cache.
func (h *Handler) Charges(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	load := h.service.Active
	if common.BoolDefault(r.URL.Query().Get("refresh"), false) {
		load = h.service.Refresh
	}
	charges, err := load(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, charges)
}
