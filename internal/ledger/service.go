// Package ledger lists payments, cheques and balances kept by the remote
// backend. Nothing here is computed locally.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Reader fetches read-only resources from the remote backend.
type Reader interface {
	GetJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
}

// Filter narrows a ledger listing. Empty fields are not sent.
type Filter struct {
	Page      int    `json:"page" validate:"gte=1"`
	PerPage   int    `json:"per_page" validate:"gte=1,lte=100"`
	Search    string `json:"search" validate:"max=100"`
	ContactID string `json:"contact_id" validate:"max=64"`
	Method    string `json:"payment_method" validate:"omitempty,oneof=cash credit cheque card"`
	Status    string `json:"status" validate:"max=32"`
	From      string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	To        string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// Values encodes the filter as backend query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			v.Set(key, value)
		}
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(f.PerPage))
	}
	set("search", f.Search)
	set("contact_id", f.ContactID)
	set("payment_method", f.Method)
	set("status", f.Status)
	set("start_date", f.From)
	set("end_date", f.To)
	return v
}

// Service relays ledger reads.
type Service struct {
	remote Reader
}

// NewService constructs a Service.
func NewService(remote Reader) (*Service, error) {
	if remote == nil {
		return nil, errors.New("ledger: reader is required")
	}
	return &Service{remote: remote}, nil
}

// Payments lists recorded payments.
func (s *Service) Payments(ctx context.Context, f Filter) (json.RawMessage, error) {
	return s.remote.GetJSON(ctx, "/api/payments", f.Values())
}

// Cheques lists recorded cheques.
func (s *Service) Cheques(ctx context.Context, f Filter) (json.RawMessage, error) {
	return s.remote.GetJSON(ctx, "/api/cheques", f.Values())
}

// ContactBalance returns the outstanding balance of a customer or supplier.
func (s *Service) ContactBalance(ctx context.Context, contactID string) (json.RawMessage, error) {
	return s.remote.GetJSON(ctx, "/api/contacts/"+url.PathEscape(strings.TrimSpace(contactID))+"/balance", nil)
}
