package cart

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

// ProductType identifies the pricing model of a line.
type ProductType string

const (
	TypeSimple     ProductType = "simple"
	TypeReload     ProductType = "reload"
	TypeCommission ProductType = "commission"
	TypeCustom     ProductType = "custom"
)

// ParseProductType maps a backend product type to a known variant. Unknown or
// blank values are treated as simple products.
func ParseProductType(value string) ProductType {
	switch ProductType(strings.ToLower(strings.TrimSpace(value))) {
	case TypeReload:
		return TypeReload
	case TypeCommission:
		return TypeCommission
	case TypeCustom:
		return TypeCustom
	default:
		return TypeSimple
	}
}

// Detail is the type-specific payload of a line.
type Detail interface {
	ProductType() ProductType
}

// DiscountKind tells which form of the unit discount was entered.
type DiscountKind string

const (
	DiscountNone    DiscountKind = ""
	DiscountAmount  DiscountKind = "amount"
	DiscountPercent DiscountKind = "percent"
)

// DiscountRule is a per-unit discount entered either as an amount or as a
// percentage of the price. Setting one form replaces the other.
type DiscountRule struct {
	Kind  DiscountKind  `json:"kind,omitempty"`
	Value pricing.Money `json:"value"`
}

// AmountOf returns the unit discount amount for the given price.
func (r DiscountRule) AmountOf(price pricing.Money) pricing.Money {
	switch r.Kind {
	case DiscountAmount:
		return r.Value
	case DiscountPercent:
		return pricing.PercentOf(price, r.Value)
	default:
		return decimal.Zero
	}
}

// PercentOf returns the unit discount as a percentage of the given price.
func (r DiscountRule) PercentOf(price pricing.Money) pricing.Money {
	switch r.Kind {
	case DiscountAmount:
		return pricing.PercentFrom(r.Value, price)
	case DiscountPercent:
		return r.Value
	default:
		return decimal.Zero
	}
}

// SimpleDetail holds the discounts of a plain product line.
type SimpleDetail struct {
	UnitDiscount DiscountRule  `json:"unit_discount"`
	LineDiscount pricing.Money `json:"line_discount"`
}

func (SimpleDetail) ProductType() ProductType { return TypeSimple }

// ReloadDetail holds the two-tier commission model of reload products.
type ReloadDetail struct {
	AdditionalCommission   pricing.Money `json:"additional_commission"`
	ExtraCommission        pricing.Money `json:"extra_commission"`
	FixedCommissionPercent pricing.Money `json:"fixed_commission_percent"`
}

func (ReloadDetail) ProductType() ProductType { return TypeReload }

// CalculatedCommission is the percentage commission on the price net of the
// additional commission.
func (d ReloadDetail) CalculatedCommission(price pricing.Money) pricing.Money {
	return pricing.PercentOf(price.Sub(d.AdditionalCommission), d.FixedCommissionPercent)
}

// TotalCommission adds the additional, extra and calculated commissions.
func (d ReloadDetail) TotalCommission(price pricing.Money) pricing.Money {
	return d.AdditionalCommission.Add(d.ExtraCommission).Add(d.CalculatedCommission(price))
}

// CommissionDetail holds the flat commission of commission products.
type CommissionDetail struct {
	FixedCommission pricing.Money `json:"fixed_commission"`
}

func (CommissionDetail) ProductType() ProductType { return TypeCommission }

// CustomDetail marks an ad-hoc line without type-specific fields.
type CustomDetail struct{}

func (CustomDetail) ProductType() ProductType { return TypeCustom }

// Line is one cart entry.
type Line struct {
	ID        uuid.UUID
	ProductID string
	BatchID   string
	Name      string
	Price     pricing.Money
	Quantity  pricing.Money
	// Cost is the entered unit cost. Reload and commission lines derive
	// their cost from the commission instead.
	Cost   pricing.Money
	Detail Detail
}

// Type returns the product type of the line, defaulting to simple.
func (l Line) Type() ProductType {
	if l.Detail == nil {
		return TypeSimple
	}
	return l.Detail.ProductType()
}

// UnitDiscount returns the per-unit discount amount of simple lines.
func (l Line) UnitDiscount() pricing.Money {
	if d, ok := l.Detail.(SimpleDetail); ok {
		return d.UnitDiscount.AmountOf(l.Price)
	}
	return decimal.Zero
}

// UnitDiscountPercent returns the per-unit discount as a percentage of price.
func (l Line) UnitDiscountPercent() pricing.Money {
	if d, ok := l.Detail.(SimpleDetail); ok {
		return d.UnitDiscount.PercentOf(l.Price)
	}
	return decimal.Zero
}

// LineDiscount returns the flat discount applied to the whole line.
func (l Line) LineDiscount() pricing.Money {
	if d, ok := l.Detail.(SimpleDetail); ok {
		return d.LineDiscount
	}
	return decimal.Zero
}

// UnitCost returns the derived cost per unit.
func (l Line) UnitCost() pricing.Money {
	switch d := l.Detail.(type) {
	case ReloadDetail:
		return l.Price.Sub(d.TotalCommission(l.Price))
	case CommissionDetail:
		return l.Price.Sub(d.FixedCommission)
	default:
		return l.Cost
	}
}

// Total is (price - unit discount) x quantity - line discount.
func (l Line) Total() pricing.Money {
	return l.Price.Sub(l.UnitDiscount()).Mul(l.Quantity).Sub(l.LineDiscount())
}

// IsReturn reports whether the line returns goods.
func (l Line) IsReturn() bool {
	return l.Quantity.IsNegative()
}

func (l Line) validate() error {
	if strings.TrimSpace(l.Name) == "" && strings.TrimSpace(l.ProductID) == "" {
		return fmt.Errorf("name or product id required: %w", ErrInvalidInput)
	}
	if l.Price.IsNegative() {
		return fmt.Errorf("price must not be negative: %w", ErrInvalidInput)
	}
	if l.Quantity.IsZero() {
		return fmt.Errorf("quantity must not be zero: %w", ErrInvalidInput)
	}
	if l.Cost.IsNegative() {
		return fmt.Errorf("cost must not be negative: %w", ErrInvalidInput)
	}
	switch d := l.Detail.(type) {
	case SimpleDetail:
		return validateSimple(l.Price, d)
	case ReloadDetail:
		if d.AdditionalCommission.IsNegative() || d.ExtraCommission.IsNegative() {
			return fmt.Errorf("commission must not be negative: %w", ErrInvalidInput)
		}
		if !inPercentRange(d.FixedCommissionPercent) {
			return fmt.Errorf("commission percent must be between 0 and 100: %w", ErrInvalidInput)
		}
	case CommissionDetail:
		if d.FixedCommission.IsNegative() {
			return fmt.Errorf("commission must not be negative: %w", ErrInvalidInput)
		}
	}
	return nil
}

func validateSimple(price pricing.Money, d SimpleDetail) error {
	switch d.UnitDiscount.Kind {
	case DiscountNone:
	case DiscountPercent:
		if !inPercentRange(d.UnitDiscount.Value) {
			return fmt.Errorf("discount percent must be between 0 and 100: %w", ErrInvalidDiscount)
		}
	case DiscountAmount:
		if d.UnitDiscount.Value.IsNegative() || d.UnitDiscount.Value.GreaterThan(price) {
			return fmt.Errorf("unit discount must be between 0 and the price: %w", ErrInvalidDiscount)
		}
	default:
		return fmt.Errorf("unknown discount kind %q: %w", d.UnitDiscount.Kind, ErrInvalidDiscount)
	}
	if d.LineDiscount.IsNegative() {
		return fmt.Errorf("line discount must not be negative: %w", ErrInvalidDiscount)
	}
	return nil
}

func inPercentRange(v pricing.Money) bool {
	return !v.IsNegative() && v.LessThanOrEqual(decimal.NewFromInt(100))
}

type lineJSON struct {
	ID                  uuid.UUID       `json:"id"`
	ProductID           string          `json:"product_id"`
	BatchID             string          `json:"batch_id,omitempty"`
	Name                string          `json:"name"`
	ProductType         ProductType     `json:"product_type"`
	Price               pricing.Money   `json:"price"`
	Quantity            pricing.Money   `json:"quantity"`
	Cost                pricing.Money   `json:"cost"`
	UnitDiscount        *pricing.Money  `json:"unit_discount,omitempty"`
	UnitDiscountPercent *pricing.Money  `json:"unit_discount_percent,omitempty"`
	Total               *pricing.Money  `json:"total,omitempty"`
	Details             json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON writes the shared fields, the derived values and the variant
// payload under "details".
func (l Line) MarshalJSON() ([]byte, error) {
	total := l.Total()
	out := lineJSON{
		ID:          l.ID,
		ProductID:   l.ProductID,
		BatchID:     l.BatchID,
		Name:        l.Name,
		ProductType: l.Type(),
		Price:       l.Price,
		Quantity:    l.Quantity,
		Cost:        l.UnitCost(),
		Total:       &total,
	}
	if l.Type() == TypeSimple {
		amount, pct := l.UnitDiscount(), l.UnitDiscountPercent()
		out.UnitDiscount, out.UnitDiscountPercent = &amount, &pct
	}
	if l.Detail != nil {
		details, err := json.Marshal(l.Detail)
		if err != nil {
			return nil, err
		}
		out.Details = details
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a line, picking the variant from product_type.
// Derived fields are ignored.
func (l *Line) UnmarshalJSON(data []byte) error {
	var in lineJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	detail, err := decodeDetail(in.ProductType, in.Details)
	if err != nil {
		return err
	}
	*l = Line{
		ID:        in.ID,
		ProductID: in.ProductID,
		BatchID:   in.BatchID,
		Name:      in.Name,
		Price:     in.Price,
		Quantity:  in.Quantity,
		Detail:    detail,
	}
	if t := detail.ProductType(); t == TypeSimple || t == TypeCustom {
		l.Cost = in.Cost
	}
	return nil
}

func decodeDetail(t ProductType, raw json.RawMessage) (Detail, error) {
	empty := len(raw) == 0 || string(raw) == "null"
	switch ParseProductType(string(t)) {
	case TypeReload:
		var d ReloadDetail
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decode reload details: %w", err)
			}
		}
		return d, nil
	case TypeCommission:
		var d CommissionDetail
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decode commission details: %w", err)
			}
		}
		return d, nil
	case TypeCustom:
		return CustomDetail{}, nil
	default:
		var d SimpleDetail
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decode simple details: %w", err)
			}
		}
		return d, nil
	}
}
