package tender

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

// Requirements are the transaction facts the submit guard depends on.
type Requirements struct {
	NetTotal        pricing.Money
	LineCount       int
	Purchase        bool
	ReferenceNumber string
	ContactID       string
}

// Readiness tells whether the transaction can be submitted and why not.
type Readiness struct {
	Ready     bool          `json:"ready"`
	Reasons   []string      `json:"reasons"`
	Received  pricing.Money `json:"received"`
	Remaining pricing.Money `json:"remaining"`
}

// Reasons reported by Check.
const (
	ReasonSubmitting        = "submission in progress"
	ReasonEmptyCart         = "cart has no items"
	ReasonOverReceived      = "amount received exceeds total"
	ReasonReferenceRequired = "purchase reference number required"
	ReasonContactRequired   = "contact required for credit or cheque payments"
)

// Check evaluates the submit guard. The amount received must lie within
// [0, max(netTotal, 0)].
func (s *State) Check(req Requirements) Readiness {
	received := s.Received()
	var reasons []string
	if s.Submitting() {
		reasons = append(reasons, ReasonSubmitting)
	}
	if req.LineCount < 1 {
		reasons = append(reasons, ReasonEmptyCart)
	}
	if received.GreaterThan(decimal.Max(req.NetTotal, decimal.Zero)) {
		reasons = append(reasons, ReasonOverReceived)
	}
	if req.Purchase && strings.TrimSpace(req.ReferenceNumber) == "" {
		reasons = append(reasons, ReasonReferenceRequired)
	}
	if strings.TrimSpace(req.ContactID) == "" {
		for _, p := range s.Payments {
			if p.Method.RequiresContact() {
				reasons = append(reasons, ReasonContactRequired)
				break
			}
		}
	}
	return Readiness{
		Ready:     len(reasons) == 0,
		Reasons:   reasons,
		Received:  received,
		Remaining: s.Remaining(req.NetTotal),
	}
}
