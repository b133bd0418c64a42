package session

import (
	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/money"
	"github.com/noah-isme/kasir-desk/internal/tender"
)

// View is the session as returned to the terminal, with derived totals and
// display strings.
type View struct {
	*Session
	Totals    cart.Totals      `json:"totals"`
	Readiness tender.Readiness `json:"readiness"`
	Display   Display          `json:"display"`
}

// Display holds formatted amounts.
type Display struct {
	Subtotal    string            `json:"subtotal"`
	Discount    string            `json:"discount"`
	ChargeTotal string            `json:"charge_total"`
	Total       string            `json:"total"`
	Received    string            `json:"received"`
	Remaining   string            `json:"remaining"`
	Lines       map[string]string `json:"lines"`
	Charges     map[string]string `json:"charges"`
	Payments    []string          `json:"payments"`
}

// NewView derives totals and display strings for sess.
func NewView(sess *Session, f *money.Formatter) View {
	totals := sess.Totals()
	ready := sess.Readiness()
	if f == nil {
		f = money.NewFormatter(money.DefaultSettings())
	}
	display := Display{
		Subtotal:    f.Format(totals.Subtotal),
		Discount:    f.Format(totals.Discount),
		ChargeTotal: f.Format(totals.ChargeTotal),
		Total:       f.Format(totals.Total),
		Received:    f.Format(ready.Received),
		Remaining:   f.Format(ready.Remaining),
		Lines:       make(map[string]string, len(sess.Cart.Lines)),
		Charges:     make(map[string]string, len(totals.Charges)),
		Payments:    make([]string, 0, len(sess.Tender.Payments)),
	}
	for _, l := range sess.Cart.Lines {
		display.Lines[l.ID.String()] = f.Format(l.Total())
	}
	for _, c := range totals.Charges {
		display.Charges[c.ID] = f.Format(c.Amount)
	}
	for _, p := range sess.Tender.Payments {
		display.Payments = append(display.Payments, f.Format(p.Amount))
	}
	return View{Session: sess, Totals: totals, Readiness: ready, Display: display}
}
