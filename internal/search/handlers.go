package search

import (
	"net/http"

	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/money"
	"github.com/noah-isme/kasir-desk/internal/session"
)

// Handler exposes product search.
type Handler struct {
	Svc       *Service
	Formatter *money.Formatter
}

type response struct {
	*Result
	Session *session.View `json:"session,omitempty"`
}

// Search handles GET /sessions/{id}/search?q=&auto_add=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "search service not configured", nil)
		return
	}
	id, ok := session.PathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := h.Svc.Search(r.Context(), Query{
		SessionID: id,
		Text:      q.Get("q"),
		AutoAdd:   common.BoolDefault(q.Get("auto_add"), false),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out := response{Result: res}
	if res.Session != nil {
		view := session.NewView(res.Session, h.Formatter)
		out.Session = &view
	}
	common.Data(w, http.StatusOK, out)
}
