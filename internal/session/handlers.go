package session

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/money"
	"github.com/noah-isme/kasir-desk/internal/pricing"
	"github.com/noah-isme/kasir-desk/internal/tender"
)

// Handler exposes the session endpoints used by the terminal UI.
type Handler struct {
	Svc       *Service
	Formatter *money.Formatter
}

// Routes mounts the session endpoints on r. extra registers further routes
// under /{id}, such as checkout and search.
func (h *Handler) Routes(r chi.Router, extra ...func(chi.Router)) {
	r.Post("/", h.Open)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Discard)
		r.Post("/items", h.AddItem)
		r.Delete("/items", h.ClearItems)
		r.Patch("/items/{lineId}", h.UpdateItem)
		r.Delete("/items/{lineId}", h.RemoveItem)
		r.Put("/discount", h.SetDiscount)
		r.Post("/charges", h.AddCharge)
		r.Delete("/charges/{chargeId}", h.RemoveCharge)
		r.Post("/payments", h.AddPayment)
		r.Delete("/payments/{index}", h.RemovePayment)
		r.Patch("/context", h.UpdateContext)
		for _, fn := range extra {
			fn(r)
		}
	})
}

type openPayload struct {
	Kind    string  `json:"kind" validate:"omitempty,oneof=sale purchase"`
	Context Context `json:"context"`
}

// Open handles POST /sessions.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
		return
	}
	var payload openPayload
	if err := decode(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	kind, err := ParseKind(payload.Kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	terminal, _ := common.TerminalID(r.Context())
	sess, err := h.Svc.Open(r.Context(), terminal, kind, payload.Context)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, sess)
}

// Get handles GET /sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// Discard handles DELETE /sessions/{id}.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Discard(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ItemPayload adds a product to the cart.
type ItemPayload struct {
	ProductID   string         `json:"product_id" validate:"max=64"`
	BatchID     string         `json:"batch_id" validate:"max=64"`
	Name        string         `json:"name" validate:"required_without=ProductID,max=200"`
	ProductType string         `json:"product_type" validate:"omitempty,oneof=simple reload commission custom"`
	Price       pricing.Money  `json:"price"`
	Quantity    *pricing.Money `json:"quantity"`
	Cost        pricing.Money  `json:"cost"`

	UnitDiscount        *pricing.Money `json:"unit_discount"`
	UnitDiscountPercent *pricing.Money `json:"unit_discount_percent"`
	LineDiscount        pricing.Money  `json:"line_discount"`

	AdditionalCommission   pricing.Money `json:"additional_commission"`
	ExtraCommission        pricing.Money `json:"extra_commission"`
	FixedCommissionPercent pricing.Money `json:"fixed_commission_percent"`
	FixedCommission        pricing.Money `json:"fixed_commission"`
}

// Line converts the payload into a cart line. A missing quantity means one unit.
func (p ItemPayload) Line() (cart.Line, error) {
	qty := pricing.ParseAmount("1")
	if p.Quantity != nil {
		qty = *p.Quantity
	}
	line := cart.Line{
		ProductID: strings.TrimSpace(p.ProductID),
		BatchID:   strings.TrimSpace(p.BatchID),
		Name:      strings.TrimSpace(p.Name),
		Price:     p.Price,
		Quantity:  qty,
		Cost:      p.Cost,
	}
	switch cart.ParseProductType(p.ProductType) {
	case cart.TypeReload:
		line.Detail = cart.ReloadDetail{
			AdditionalCommission:   p.AdditionalCommission,
			ExtraCommission:        p.ExtraCommission,
			FixedCommissionPercent: p.FixedCommissionPercent,
		}
	case cart.TypeCommission:
		line.Detail = cart.CommissionDetail{FixedCommission: p.FixedCommission}
	case cart.TypeCustom:
		line.Detail = cart.CustomDetail{}
	default:
		detail := cart.SimpleDetail{LineDiscount: p.LineDiscount}
		switch {
		case p.UnitDiscount != nil && p.UnitDiscountPercent != nil:
			return cart.Line{}, cart.ErrInvalidDiscount
		case p.UnitDiscount != nil:
			detail.UnitDiscount = cart.DiscountRule{Kind: cart.DiscountAmount, Value: *p.UnitDiscount}
		case p.UnitDiscountPercent != nil:
			detail.UnitDiscount = cart.DiscountRule{Kind: cart.DiscountPercent, Value: *p.UnitDiscountPercent}
		}
		line.Detail = detail
	}
	return line, nil
}

// AddItem handles POST /sessions/{id}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var payload ItemPayload
	if err := decode(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	line, err := payload.Line()
	if err != nil {
		h.writeError(w, err)
		return
	}
	sess, _, err := h.Svc.AddLine(r.Context(), id, line)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, sess)
}

// UpdateItem handles PATCH /sessions/{id}/items/{lineId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "lineId")
	if !ok {
		return
	}
	var patch cart.LinePatch
	if err := decode(r, &patch); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.UpdateLine(r.Context(), id, lineID, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// RemoveItem handles DELETE /sessions/{id}/items/{lineId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "lineId")
	if !ok {
		return
	}
	sess, err := h.Svc.RemoveLine(r.Context(), id, lineID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// ClearItems handles DELETE /sessions/{id}/items.
func (h *Handler) ClearItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.Svc.ClearCart(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// SetDiscount handles PUT /sessions/{id}/discount.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var payload DiscountInput
	if err := decode(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.SetDiscount(r.Context(), id, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

type chargePayload struct {
	ChargeID string `json:"charge_id" validate:"required,max=64"`
}

// AddCharge handles POST /sessions/{id}/charges.
func (h *Handler) AddCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var payload chargePayload
	if err := decode(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.AddCharge(r.Context(), id, strings.TrimSpace(payload.ChargeID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// RemoveCharge handles DELETE /sessions/{id}/charges/{chargeId}.
func (h *Handler) RemoveCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.Svc.RemoveCharge(r.Context(), id, chi.URLParam(r, "chargeId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

type paymentPayload struct {
	Method     string        `json:"payment_method" validate:"required,oneof=cash credit cheque card"`
	Amount     pricing.Money `json:"amount"`
	Reference  string        `json:"reference" validate:"max=64"`
	ChequeDate string        `json:"cheque_date" validate:"omitempty,datetime=2006-01-02"`
}

// AddPayment handles POST /sessions/{id}/payments.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var payload paymentPayload
	if err := decode(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.AddPayment(r.Context(), id, tender.Payment{
		Method:     tender.Method(payload.Method),
		Amount:     payload.Amount,
		Reference:  strings.TrimSpace(payload.Reference),
		ChequeDate: payload.ChequeDate,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, sess)
}

// RemovePayment handles DELETE /sessions/{id}/payments/{index}.
func (h *Handler) RemovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "payment index must be a number", nil)
		return
	}
	sess, err := h.Svc.RemovePayment(r.Context(), id, index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// UpdateContext handles PATCH /sessions/{id}/context.
func (h *Handler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var patch ContextPatch
	if err := decode(r, &patch); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.UpdateContext(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *Handler) respond(w http.ResponseWriter, status int, sess *Session) {
	common.Data(w, status, NewView(sess, h.Formatter))
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
		return uuid.Nil, false
	}
	return pathUUID(w, r, "id")
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, AppError(err))
}

// PathID parses the session id route parameter. It writes a 400 response and
// reports false when the id is malformed.
func PathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return pathUUID(w, r, "id")
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+param, nil)
		return uuid.Nil, false
	}
	return id, true
}

func decode(r *http.Request, dst any) error {
	if err := common.DecodeJSON(r, dst); err != nil {
		return err
	}
	return common.ValidateStruct(dst)
}
