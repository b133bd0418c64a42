package session

import (
	"errors"
	"net/http"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/tender"
)

// AppError maps session, cart and tender errors onto API errors. Unknown
// errors are returned unchanged.
func AppError(err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("session not found", err)
	case errors.Is(err, cart.ErrLineNotFound):
		return common.NewAppError("LINE_NOT_FOUND", "cart line not found", http.StatusNotFound, err)
	case errors.Is(err, cart.ErrChargeNotFound):
		return common.NewAppError("CHARGE_NOT_FOUND", "charge not found in cart", http.StatusNotFound, err)
	case errors.Is(err, tender.ErrPaymentNotFound):
		return common.NewAppError("PAYMENT_NOT_FOUND", "payment not found", http.StatusNotFound, err)
	case errors.Is(err, tender.ErrOverpayment):
		return common.Conflict("OVERPAYMENT", err.Error(), err)
	case errors.Is(err, tender.ErrAlreadySubmitting):
		return common.Conflict("ALREADY_SUBMITTING", "submission already in progress", err)
	case errors.Is(err, cart.ErrInvalidInput),
		errors.Is(err, cart.ErrInvalidDiscount),
		errors.Is(err, cart.ErrFieldNotApplicable),
		errors.Is(err, tender.ErrInvalidPayment),
		errors.Is(err, ErrInvalidInput):
		return common.Validation(err.Error(), err)
	default:
		return err
	}
}
