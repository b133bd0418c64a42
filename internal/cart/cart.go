// Package cart holds the line items, cart discount and selected charges of a
// transaction and derives its totals.
package cart

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

var (
	// ErrLineNotFound indicates no line matches the requested identity.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrChargeNotFound indicates the charge is not part of the cart.
	ErrChargeNotFound = errors.New("charge not found in cart")
	// ErrInvalidInput is returned when a line payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidDiscount is returned for negative or out of range discounts.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrFieldNotApplicable is returned when a patch targets fields of another product type.
	ErrFieldNotApplicable = errors.New("field not applicable to product type")
)

// Cart is the mutable state of one transaction. Only the absolute cart
// discount is stored; charge amounts and totals are derived on read.
type Cart struct {
	Lines    []Line           `json:"lines"`
	Discount pricing.Money    `json:"discount"`
	Charges  []pricing.Charge `json:"charges"`
}

// Totals summarises the cart.
type Totals struct {
	pricing.Summary
	LineCount int           `json:"line_count"`
	Quantity  pricing.Money `json:"quantity"`
}

// Add validates and appends a line, assigning it a fresh identity.
func (c *Cart) Add(line Line) (Line, error) {
	if line.Detail == nil {
		line.Detail = SimpleDetail{}
	}
	if err := line.validate(); err != nil {
		return Line{}, err
	}
	switch line.Type() {
	case TypeReload, TypeCommission:
		line.Cost = decimal.Zero
	}
	line.ID = uuid.New()
	c.Lines = append(c.Lines, line)
	return line, nil
}

// Line returns the line with the given identity.
func (c *Cart) Line(id uuid.UUID) (Line, error) {
	idx := c.indexOf(id)
	if idx < 0 {
		return Line{}, ErrLineNotFound
	}
	return c.Lines[idx], nil
}

// Update applies patch to the line with the given identity. The line is left
// untouched when the patched result is invalid.
func (c *Cart) Update(id uuid.UUID, patch LinePatch) (Line, error) {
	idx := c.indexOf(id)
	if idx < 0 {
		return Line{}, ErrLineNotFound
	}
	updated, err := patch.apply(c.Lines[idx])
	if err != nil {
		return Line{}, err
	}
	if err := updated.validate(); err != nil {
		return Line{}, err
	}
	c.Lines[idx] = updated
	return updated, nil
}

// Remove deletes the line with the given identity.
func (c *Cart) Remove(id uuid.UUID) error {
	idx := c.indexOf(id)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	return nil
}

// Clear drops every line, the discount and the selected charges.
func (c *Cart) Clear() {
	c.Lines = nil
	c.Discount = decimal.Zero
	c.Charges = nil
}

// SetDiscount stores a flat cart discount.
func (c *Cart) SetDiscount(amount pricing.Money) error {
	if amount.IsNegative() {
		return fmt.Errorf("discount must not be negative: %w", ErrInvalidDiscount)
	}
	c.Discount = amount
	return nil
}

// SetDiscountPercent converts pct of the current subtotal to a flat discount
// and stores that amount.
func (c *Cart) SetDiscountPercent(pct pricing.Money) (pricing.Money, error) {
	if !inPercentRange(pct) {
		return decimal.Zero, fmt.Errorf("discount percent must be between 0 and 100: %w", ErrInvalidDiscount)
	}
	amount := pricing.PercentOf(c.Subtotal(), pct)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	c.Discount = amount
	return amount, nil
}

// AddCharge selects a charge. Selecting an already selected charge replaces it.
func (c *Cart) AddCharge(charge pricing.Charge) {
	for i := range c.Charges {
		if c.Charges[i].ID == charge.ID {
			c.Charges[i] = charge
			return
		}
	}
	c.Charges = append(c.Charges, charge)
}

// RemoveCharge deselects the charge with the given id.
func (c *Cart) RemoveCharge(id string) error {
	for i := range c.Charges {
		if c.Charges[i].ID == id {
			c.Charges = append(c.Charges[:i], c.Charges[i+1:]...)
			return nil
		}
	}
	return ErrChargeNotFound
}

// Subtotal sums the line totals.
func (c *Cart) Subtotal() pricing.Money {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Totals recomputes every derived amount from the current state.
func (c *Cart) Totals() Totals {
	qty := decimal.Zero
	for _, l := range c.Lines {
		qty = qty.Add(l.Quantity)
	}
	return Totals{
		Summary:   pricing.Compute(c.Subtotal(), c.Discount, c.Charges),
		LineCount: len(c.Lines),
		Quantity:  qty,
	}
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) indexOf(id uuid.UUID) int {
	for i := range c.Lines {
		if c.Lines[i].ID == id {
			return i
		}
	}
	return -1
}
