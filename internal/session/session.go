// Package session keeps the state of one terminal transaction between
// requests.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/tender"
)

var (
	// ErrNotFound indicates the session does not exist or expired.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidInput is returned for malformed session payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind tells whether the transaction sells to a customer or buys from a supplier.
type Kind string

const (
	KindSale     Kind = "sale"
	KindPurchase Kind = "purchase"
)

// ParseKind validates a session kind; blank defaults to sale.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case "", KindSale:
		return KindSale, nil
	case KindPurchase:
		return KindPurchase, nil
	default:
		return "", fmt.Errorf("unknown session kind %q: %w", value, ErrInvalidInput)
	}
}

// Context is the transaction metadata sent along with the submission.
type Context struct {
	ContactID       string `json:"contact_id,omitempty"`
	StoreID         string `json:"store_id,omitempty"`
	EditID          string `json:"edit_id,omitempty"`
	Return          bool   `json:"is_return"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Note            string `json:"note,omitempty"`
}

// Editing reports whether the transaction amends an existing one.
func (c Context) Editing() bool {
	return strings.TrimSpace(c.EditID) != ""
}

// ContextPatch changes selected context fields.
type ContextPatch struct {
	ContactID       *string `json:"contact_id"`
	StoreID         *string `json:"store_id"`
	EditID          *string `json:"edit_id"`
	Return          *bool   `json:"is_return"`
	ReferenceNumber *string `json:"reference_number" validate:"omitempty,max=64"`
	Note            *string `json:"note" validate:"omitempty,max=500"`
}

func (p ContextPatch) apply(c Context) Context {
	if p.ContactID != nil {
		c.ContactID = strings.TrimSpace(*p.ContactID)
	}
	if p.StoreID != nil {
		c.StoreID = strings.TrimSpace(*p.StoreID)
	}
	if p.EditID != nil {
		c.EditID = strings.TrimSpace(*p.EditID)
	}
	if p.Return != nil {
		c.Return = *p.Return
	}
	if p.ReferenceNumber != nil {
		c.ReferenceNumber = strings.TrimSpace(*p.ReferenceNumber)
	}
	if p.Note != nil {
		c.Note = *p.Note
	}
	return c
}

// Session is one open transaction on a terminal.
type Session struct {
	ID         uuid.UUID    `json:"id"`
	TerminalID string       `json:"terminal_id,omitempty"`
	Kind       Kind         `json:"kind"`
	Context    Context      `json:"context"`
	Cart       cart.Cart    `json:"cart"`
	Tender     tender.State `json:"tender"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Totals recomputes the cart totals.
func (s *Session) Totals() cart.Totals {
	return s.Cart.Totals()
}

// Readiness evaluates the submit guard against the current totals.
func (s *Session) Readiness() tender.Readiness {
	totals := s.Totals()
	return s.Tender.Check(tender.Requirements{
		NetTotal:        totals.Total,
		LineCount:       totals.LineCount,
		Purchase:        s.Kind == KindPurchase,
		ReferenceNumber: s.Context.ReferenceNumber,
		ContactID:       s.Context.ContactID,
	})
}
