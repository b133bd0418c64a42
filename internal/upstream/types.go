package upstream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/noah-isme/kasir-desk/internal/pricing"
)

// Product is a search hit from the remote catalog.
type Product struct {
	ID                     string        `json:"id"`
	BatchID                string        `json:"batch_id,omitempty"`
	Name                   string        `json:"name"`
	Barcode                string        `json:"barcode,omitempty"`
	ProductType            string        `json:"product_type"`
	Price                  pricing.Money `json:"price"`
	Cost                   pricing.Money `json:"cost"`
	Stock                  pricing.Money `json:"stock"`
	FixedCommission        pricing.Money `json:"fixed_commission"`
	AdditionalCommission   pricing.Money `json:"additional_commission"`
	ExtraCommission        pricing.Money `json:"extra_commission"`
	FixedCommissionPercent pricing.Money `json:"fixed_commission_percent"`
}

// UnmarshalJSON accepts the alternative field names and numeric or string
// values the backend uses for products.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				if s := rawString(v); s != "" {
					return s
				}
			}
		}
		return ""
	}
	amount := func(keys ...string) pricing.Money {
		return pricing.ParseAmount(pick(keys...))
	}
	*p = Product{
		ID:                     pick("id", "product_id"),
		BatchID:                pick("batch_id"),
		Name:                   pick("name", "product_name"),
		Barcode:                pick("barcode", "sku"),
		ProductType:            pick("product_type"),
		Price:                  amount("price", "selling_price"),
		Cost:                   amount("cost", "cost_price"),
		Stock:                  amount("stock", "quantity"),
		FixedCommission:        amount("fixed_commission"),
		AdditionalCommission:   amount("additional_commission"),
		ExtraCommission:        amount("extra_commission"),
		FixedCommissionPercent: amount("fixed_commission_percent"),
	}
	return nil
}

// SubmissionLine is one cart line as sent to the backend.
type SubmissionLine struct {
	LineID                 string         `json:"line_id"`
	ProductID              string         `json:"product_id,omitempty"`
	BatchID                string         `json:"batch_id,omitempty"`
	Name                   string         `json:"name"`
	ProductType            string         `json:"product_type"`
	Price                  pricing.Money  `json:"price"`
	Quantity               pricing.Money  `json:"quantity"`
	Cost                   pricing.Money  `json:"cost"`
	UnitDiscount           pricing.Money  `json:"discount"`
	UnitDiscountPercent    pricing.Money  `json:"discount_percent"`
	LineDiscount           pricing.Money  `json:"flat_discount"`
	Total                  pricing.Money  `json:"total"`
	FixedCommission        *pricing.Money `json:"fixed_commission,omitempty"`
	AdditionalCommission   *pricing.Money `json:"additional_commission,omitempty"`
	ExtraCommission        *pricing.Money `json:"extra_commission,omitempty"`
	FixedCommissionPercent *pricing.Money `json:"fixed_commission_percent,omitempty"`
	CalculatedCommission   *pricing.Money `json:"calculated_commission,omitempty"`
	TotalCommission        *pricing.Money `json:"total_commission,omitempty"`
}

// SubmissionCharge is a selected charge with its computed amount.
type SubmissionCharge struct {
	ID        string           `json:"charge_id"`
	Name      string           `json:"name"`
	RateType  pricing.RateType `json:"rate_type"`
	RateValue pricing.Money    `json:"rate_value"`
	Amount    pricing.Money    `json:"amount"`
}

// SubmissionPayment is one tender.
type SubmissionPayment struct {
	Method     string        `json:"payment_method"`
	Amount     pricing.Money `json:"amount"`
	Reference  string        `json:"reference,omitempty"`
	ChequeDate string        `json:"cheque_date,omitempty"`
}

// Submission is the sale or purchase payload POSTed at checkout.
type Submission struct {
	Reference       string              `json:"client_reference"`
	Lines           []SubmissionLine    `json:"products"`
	Charges         []SubmissionCharge  `json:"charges"`
	Payments        []SubmissionPayment `json:"payments"`
	Subtotal        pricing.Money       `json:"sub_total"`
	Discount        pricing.Money       `json:"discount"`
	ChargeTotal     pricing.Money       `json:"charge_total"`
	NetTotal        pricing.Money       `json:"net_total"`
	AmountReceived  pricing.Money       `json:"amount_received"`
	Balance         pricing.Money       `json:"balance"`
	ContactID       string              `json:"contact_id,omitempty"`
	StoreID         string              `json:"store_id,omitempty"`
	IsSale          bool                `json:"is_sale"`
	IsEdit          bool                `json:"is_edit"`
	EditID          string              `json:"edit_id,omitempty"`
	IsReturn        bool                `json:"is_return"`
	ReferenceNumber string              `json:"reference_number,omitempty"`
	Note            string              `json:"note,omitempty"`
}

// Receipt is the backend's answer to an accepted submission.
type Receipt struct {
	SaleID  string          `json:"sale_id,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

func decodeReceipt(body []byte) Receipt {
	r := Receipt{}
	if json.Valid(body) {
		r.Raw = json.RawMessage(body)
	}
	var payload struct {
		Message string          `json:"message"`
		SaleID  json.RawMessage `json:"sale_id"`
		ID      json.RawMessage `json:"id"`
		Data    struct {
			ID     json.RawMessage `json:"id"`
			SaleID json.RawMessage `json:"sale_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return r
	}
	r.Message = strings.TrimSpace(payload.Message)
	for _, candidate := range []json.RawMessage{payload.SaleID, payload.Data.SaleID, payload.ID, payload.Data.ID} {
		if id := rawString(candidate); id != "" {
			r.SaleID = id
			break
		}
	}
	return r
}

// unwrapData returns the "data" member of an enveloped list, or body itself.
func unwrapData(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 {
			return env.Data
		}
	}
	return trimmed
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
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return ""
	}
	return string(trimmed)
}
