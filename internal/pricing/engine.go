package pricing

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value. Amounts are kept exact and rounded to
// Scale only where a charge or discount is derived from a rate.
type Money = decimal.Decimal

// Scale is the number of decimal places kept for derived currency amounts.
const Scale int32 = 2

var hundred = decimal.NewFromInt(100)

// RateType tells how a charge rate is applied.
type RateType string

const (
	// RatePercentage applies rate_value percent of the discounted base.
	RatePercentage RateType = "percentage"
	// RateFixed adds rate_value as a flat fee.
	RateFixed RateType = "fixed"
)

// ParseRateType normalises the rate type spellings used by the backend.
// Anything that is not a percentage is treated as a flat fee.
func ParseRateType(value string) RateType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "percentage", "percent", "%":
		return RatePercentage
	default:
		return RateFixed
	}
}

// Charge is a named tax or fee rule applicable to a transaction.
type Charge struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	RateType  RateType `json:"rate_type"`
	RateValue Money    `json:"rate_value"`
}

// UnmarshalJSON accepts numeric or string ids and rate values. A rate value
// that does not parse becomes zero.
func (c *Charge) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Name      string          `json:"name"`
		RateType  string          `json:"rate_type"`
		RateValue json.RawMessage `json:"rate_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = rawString(raw.ID)
	c.Name = strings.TrimSpace(raw.Name)
	c.RateType = ParseRateType(raw.RateType)
	c.RateValue = ParseAmount(rawString(raw.RateValue))
	return nil
}

// Amount computes the monetary effect of the charge on the given base, the
// cart subtotal minus the cart discount.
func (c Charge) Amount(base Money) Money {
	if c.RateType == RatePercentage {
		return PercentOf(base, c.RateValue)
	}
	return c.RateValue.Round(Scale)
}

// ParseAmount parses a numeric string, coercing blank or malformed input to zero.
func ParseAmount(value string) Money {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PercentOf returns pct percent of amount rounded to Scale.
func PercentOf(amount, pct Money) Money {
	return amount.Mul(pct).Div(hundred).Round(Scale)
}

// PercentFrom expresses part as a percentage of whole. A zero whole yields zero.
func PercentFrom(part, whole Money) Money {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 4)
}

// ChargeLine pairs a charge with its amount for the current base.
type ChargeLine struct {
	Charge
	Amount Money `json:"amount"`
}

// MarshalJSON flattens the embedded charge next to the computed amount.
func (l ChargeLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		RateType  RateType `json:"rate_type"`
		RateValue Money    `json:"rate_value"`
		Amount    Money    `json:"amount"`
	}{l.ID, l.Name, l.RateType, l.RateValue, l.Amount})
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal    Money        `json:"subtotal"`
	Discount    Money        `json:"discount"`
	Base        Money        `json:"base"`
	Charges     []ChargeLine `json:"charges"`
	ChargeTotal Money        `json:"charge_total"`
	Total       Money        `json:"total"`
}

// Compute derives the cart totals. The discount is clamped to
// [0, max(subtotal, 0)] and every charge is recomputed against
// subtotal - discount; nothing is cached between calls.
func Compute(subtotal, discount Money, charges []Charge) Summary {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	ceiling := decimal.Max(subtotal, decimal.Zero)
	if discount.GreaterThan(ceiling) {
		discount = ceiling
	}
	base := subtotal.Sub(discount)
	lines := make([]ChargeLine, 0, len(charges))
	chargeTotal := decimal.Zero
	for _, c := range charges {
		amount := c.Amount(base)
		chargeTotal = chargeTotal.Add(amount)
		lines = append(lines, ChargeLine{Charge: c, Amount: amount})
	}
	return Summary{
		Subtotal:    subtotal,
		Discount:    discount,
		Base:        base,
		Charges:     lines,
		ChargeTotal: chargeTotal,
		Total:       base.Add(chargeTotal),
	}
}

func rawString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}
