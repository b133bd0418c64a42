package checkout

import (
	"fmt"
	"time"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/session"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

// Reference identifies one submit attempt of a session. It doubles as the
// idempotency key of the remote POST.
func Reference(sess *session.Session, startedAt time.Time) string {
	return fmt.Sprintf("%s-%d", sess.ID, startedAt.UnixMilli())
}

// BuildSubmission assembles the payload for the remote backend from the
// session as it is now. Every amount is derived again here.
func BuildSubmission(sess *session.Session, reference string) upstream.Submission {
	totals := sess.Totals()
	received := sess.Tender.Received()

	lines := make([]upstream.SubmissionLine, 0, len(sess.Cart.Lines))
	for _, l := range sess.Cart.Lines {
		lines = append(lines, submissionLine(l))
	}
	charges := make([]upstream.SubmissionCharge, 0, len(totals.Charges))
	for _, c := range totals.Charges {
		charges = append(charges, upstream.SubmissionCharge{
			ID:        c.ID,
			Name:      c.Name,
			RateType:  c.RateType,
			RateValue: c.RateValue,
			Amount:    c.Amount,
		})
	}
	payments := make([]upstream.SubmissionPayment, 0, len(sess.Tender.Payments))
	for _, p := range sess.Tender.Payments {
		payments = append(payments, upstream.SubmissionPayment{
			Method:     string(p.Method),
			Amount:     p.Amount,
			Reference:  p.Reference,
			ChequeDate: p.ChequeDate,
		})
	}

	return upstream.Submission{
		Reference:       reference,
		Lines:           lines,
		Charges:         charges,
		Payments:        payments,
		Subtotal:        totals.Subtotal,
		Discount:        totals.Discount,
		ChargeTotal:     totals.ChargeTotal,
		NetTotal:        totals.Total,
		AmountReceived:  received,
		Balance:         totals.Total.Sub(received),
		ContactID:       sess.Context.ContactID,
		StoreID:         sess.Context.StoreID,
		IsSale:          sess.Kind != session.KindPurchase,
		IsEdit:          sess.Context.Editing(),
		EditID:          sess.Context.EditID,
		IsReturn:        sess.Context.Return,
		ReferenceNumber: sess.Context.ReferenceNumber,
		Note:            sess.Context.Note,
	}
}

func submissionLine(l cart.Line) upstream.SubmissionLine {
	out := upstream.SubmissionLine{
		LineID:              l.ID.String(),
		ProductID:           l.ProductID,
		BatchID:             l.BatchID,
		Name:                l.Name,
		ProductType:         string(l.Type()),
		Price:               l.Price,
		Quantity:            l.Quantity,
		Cost:                l.UnitCost(),
		UnitDiscount:        l.UnitDiscount(),
		UnitDiscountPercent: l.UnitDiscountPercent(),
		LineDiscount:        l.LineDiscount(),
		Total:               l.Total(),
	}
	switch d := l.Detail.(type) {
	case cart.ReloadDetail:
		calculated := d.CalculatedCommission(l.Price)
		total := d.TotalCommission(l.Price)
		out.AdditionalCommission = &d.AdditionalCommission
		out.ExtraCommission = &d.ExtraCommission
		out.FixedCommissionPercent = &d.FixedCommissionPercent
		out.CalculatedCommission = &calculated
		out.TotalCommission = &total
	case cart.CommissionDetail:
		out.FixedCommission = &d.FixedCommission
	}
	return out
}
