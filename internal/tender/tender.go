// Package tender tracks the payments entered against a transaction and decides
// when the transaction may be submitted.
package tender

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

var (
	// ErrOverpayment is returned when a payment would push the amount
	// received above the net total.
	ErrOverpayment = errors.New("payment exceeds remaining amount")
	// ErrInvalidPayment is returned for malformed payments.
	ErrInvalidPayment = errors.New("invalid payment")
	// ErrPaymentNotFound is returned when removing an unknown position.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrAlreadySubmitting is returned when the transaction is being submitted.
	ErrAlreadySubmitting = errors.New("submission already in progress")
)

// Method is a tender type.
type Method string

const (
	MethodCash   Method = "cash"
	MethodCredit Method = "credit"
	MethodCheque Method = "cheque"
	MethodCard   Method = "card"
)

// ParseMethod validates a tender type.
func ParseMethod(value string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(value))); m {
	case MethodCash, MethodCredit, MethodCheque, MethodCard:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method %q: %w", value, ErrInvalidPayment)
	}
}

// RequiresContact reports whether the tender must be tied to a customer or supplier.
func (m Method) RequiresContact() bool {
	return m == MethodCredit || m == MethodCheque
}

// Payment is one tender entered by the cashier.
type Payment struct {
	Method     Method        `json:"payment_method"`
	Amount     pricing.Money `json:"amount"`
	Reference  string        `json:"reference,omitempty"`
	ChequeDate string        `json:"cheque_date,omitempty"`
}

// Validate checks the payment fields.
func (p Payment) Validate() error {
	if _, err := ParseMethod(string(p.Method)); err != nil {
		return err
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %w", ErrInvalidPayment)
	}
	if p.Method == MethodCheque {
		if strings.TrimSpace(p.Reference) == "" {
			return fmt.Errorf("cheque number required: %w", ErrInvalidPayment)
		}
		if _, err := time.Parse(time.DateOnly, p.ChequeDate); err != nil {
			return fmt.Errorf("cheque date must be YYYY-MM-DD: %w", ErrInvalidPayment)
		}
	}
	return nil
}

// Phase is the tender state of a transaction.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhasePaymentAdded Phase = "payment_added"
	PhaseSubmitting   Phase = "submitting"
	PhaseSuccess      Phase = "success"
	PhaseFailed       Phase = "failed"
)

// State holds the payments and the phase of a transaction.
type State struct {
	Payments  []Payment `json:"payments"`
	Phase     Phase     `json:"phase"`
	LastError string    `json:"last_error,omitempty"`
	// SubmitStartedAt is set while a submission is in flight.
	SubmitStartedAt *time.Time `json:"submit_started_at,omitempty"`
}

// Submitting reports whether a submission is in flight.
func (s *State) Submitting() bool {
	return s.Phase == PhaseSubmitting
}

// Received sums the entered payments.
func (s *State) Received() pricing.Money {
	sum := decimal.Zero
	for _, p := range s.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// Remaining is max(netTotal - received, 0).
func (s *State) Remaining(netTotal pricing.Money) pricing.Money {
	return decimal.Max(netTotal.Sub(s.Received()), decimal.Zero)
}

// Add appends a payment unless it would exceed the net total.
func (s *State) Add(p Payment, netTotal pricing.Money) error {
	if s.Submitting() {
		return ErrAlreadySubmitting
	}
	if err := p.Validate(); err != nil {
		return err
	}
	balance := s.Received().Add(p.Amount)
	if balance.GreaterThan(netTotal) {
		return fmt.Errorf("received %s would exceed total %s: %w", balance.StringFixed(pricing.Scale), netTotal.StringFixed(pricing.Scale), ErrOverpayment)
	}
	s.Payments = append(s.Payments, p)
	s.Touch()
	return nil
}

// Remove deletes the payment at index.
func (s *State) Remove(index int) (Payment, error) {
	if s.Submitting() {
		return Payment{}, ErrAlreadySubmitting
	}
	if index < 0 || index >= len(s.Payments) {
		return Payment{}, ErrPaymentNotFound
	}
	removed := s.Payments[index]
	s.Payments = append(s.Payments[:index], s.Payments[index+1:]...)
	s.Touch()
	return removed, nil
}

// Touch moves the phase back to idle or payment added after an edit. A
// failed submission is forgotten on the next edit.
func (s *State) Touch() {
	if s.Submitting() {
		return
	}
	s.LastError = ""
	if len(s.Payments) == 0 {
		s.Phase = PhaseIdle
		return
	}
	s.Phase = PhasePaymentAdded
}

// BeginSubmit enters the submitting phase.
func (s *State) BeginSubmit(now time.Time) error {
	if s.Submitting() {
		return ErrAlreadySubmitting
	}
	s.Phase = PhaseSubmitting
	s.LastError = ""
	s.SubmitStartedAt = &now
	return nil
}

// Stale reports whether a submission started more than maxAge ago, which
// only happens when the process handling it went away.
func (s *State) Stale(now time.Time, maxAge time.Duration) bool {
	return s.Submitting() && s.SubmitStartedAt != nil && now.Sub(*s.SubmitStartedAt) > maxAge
}

// Fail records a rejected submission. Payments are kept.
func (s *State) Fail(message string) {
	s.Phase = PhaseFailed
	s.LastError = message
	s.SubmitStartedAt = nil
}

// Succeed marks the submission as accepted.
func (s *State) Succeed() {
	s.Phase = PhaseSuccess
	s.LastError = ""
	s.SubmitStartedAt = nil
}
