package cart

import (
	"fmt"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

// LinePatch carries the fields to change on a line. Nil fields are left as is.
// Setting UnitDiscountAmount clears a percent discount and vice versa.
type LinePatch struct {
	Name     *string        `json:"name"`
	BatchID  *string        `json:"batch_id"`
	Price    *pricing.Money `json:"price"`
	Quantity *pricing.Money `json:"quantity"`
	Cost     *pricing.Money `json:"cost"`

	UnitDiscountAmount  *pricing.Money `json:"unit_discount"`
	UnitDiscountPercent *pricing.Money `json:"unit_discount_percent"`
	LineDiscount        *pricing.Money `json:"line_discount"`

	AdditionalCommission   *pricing.Money `json:"additional_commission"`
	ExtraCommission        *pricing.Money `json:"extra_commission"`
	FixedCommissionPercent *pricing.Money `json:"fixed_commission_percent"`
	FixedCommission        *pricing.Money `json:"fixed_commission"`
}

func (p LinePatch) apply(l Line) (Line, error) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.BatchID != nil {
		l.BatchID = *p.BatchID
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.UnitDiscountAmount != nil && p.UnitDiscountPercent != nil {
		return Line{}, fmt.Errorf("unit discount amount and percent are mutually exclusive: %w", ErrInvalidDiscount)
	}

	switch d := l.Detail.(type) {
	case ReloadDetail:
		if err := p.rejectSimple(); err != nil {
			return Line{}, err
		}
		if p.Cost != nil || p.FixedCommission != nil {
			return Line{}, fmt.Errorf("reload lines derive their cost: %w", ErrFieldNotApplicable)
		}
		if p.AdditionalCommission != nil {
			d.AdditionalCommission = *p.AdditionalCommission
		}
		if p.ExtraCommission != nil {
			d.ExtraCommission = *p.ExtraCommission
		}
		if p.FixedCommissionPercent != nil {
			d.FixedCommissionPercent = *p.FixedCommissionPercent
		}
		l.Detail = d
	case CommissionDetail:
		if err := p.rejectSimple(); err != nil {
			return Line{}, err
		}
		if err := p.rejectReload(); err != nil {
			return Line{}, err
		}
		if p.Cost != nil {
			return Line{}, fmt.Errorf("commission lines derive their cost: %w", ErrFieldNotApplicable)
		}
		if p.FixedCommission != nil {
			d.FixedCommission = *p.FixedCommission
		}
		l.Detail = d
	case CustomDetail:
		if err := p.rejectSimple(); err != nil {
			return Line{}, err
		}
		if err := p.rejectReload(); err != nil {
			return Line{}, err
		}
		if p.FixedCommission != nil {
			return Line{}, fmt.Errorf("fixed_commission: %w", ErrFieldNotApplicable)
		}
		if p.Cost != nil {
			l.Cost = *p.Cost
		}
	default:
		simple, _ := l.Detail.(SimpleDetail)
		if err := p.rejectReload(); err != nil {
			return Line{}, err
		}
		if p.FixedCommission != nil {
			return Line{}, fmt.Errorf("fixed_commission: %w", ErrFieldNotApplicable)
		}
		if p.Cost != nil {
			l.Cost = *p.Cost
		}
		if p.UnitDiscountAmount != nil {
			simple.UnitDiscount = DiscountRule{Kind: DiscountAmount, Value: *p.UnitDiscountAmount}
		}
		if p.UnitDiscountPercent != nil {
			simple.UnitDiscount = DiscountRule{Kind: DiscountPercent, Value: *p.UnitDiscountPercent}
		}
		if p.LineDiscount != nil {
			simple.LineDiscount = *p.LineDiscount
		}
		l.Detail = simple
	}
	return l, nil
}

func (p LinePatch) rejectSimple() error {
	if p.UnitDiscountAmount != nil || p.UnitDiscountPercent != nil || p.LineDiscount != nil {
		return fmt.Errorf("discounts apply to simple lines only: %w", ErrFieldNotApplicable)
	}
	return nil
}

func (p LinePatch) rejectReload() error {
	if p.AdditionalCommission != nil || p.ExtraCommission != nil || p.FixedCommissionPercent != nil {
		return fmt.Errorf("reload commission fields: %w", ErrFieldNotApplicable)
	}
	return nil
}
