// Package pricing computes order totals from server-resolved line items.
// All arithmetic runs on decimals scaled to minor currency units; results
// are rounded half-up to two fraction digits and rendered as strings so no
// binary floats leak downstream.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the business rule constants applied to every order.
type Policy struct {
	TaxRate        decimal.Decimal
	ServiceFeeRate decimal.Decimal
	FlatShipping   decimal.Decimal
}

// NewPolicy parses the rate and amount constants from their configured
// string form.
func NewPolicy(taxRate, serviceFeeRate, flatShipping string) (Policy, error) {
	tax, err := decimal.NewFromString(taxRate)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	fee, err := decimal.NewFromString(serviceFeeRate)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid service fee rate %q: %w", serviceFeeRate, err)
	}
	shipping, err := decimal.NewFromString(flatShipping)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid flat shipping %q: %w", flatShipping, err)
	}
	return Policy{TaxRate: tax, ServiceFeeRate: fee, FlatShipping: shipping}, nil
}

// LineItem is the pricing view of one order item.
type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int64
}

// Amounts is a priced order breakdown. Each field is a decimal string with
// exactly two fraction digits.
type Amounts struct {
	ItemsPrice    string
	ServiceFee    string
	ShippingPrice string
	TaxPrice      string
	TotalPrice    string
}

// Quote prices a sequence of line items under the policy. It is pure: no
// side effects, same input gives same output.
//
// itemsPrice is summed in minor units, then the fee and tax percentages are
// applied to it and the flat shipping added. Every component is rounded
// half-up to two places before the total is formed, so the persisted parts
// always sum exactly to the persisted total.
func (p Policy) Quote(items []LineItem) Amounts {
	itemsPrice := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Shift(2).Round(0).Mul(decimal.NewFromInt(item.Quantity))
		itemsPrice = itemsPrice.Add(line)
	}
	itemsPrice = itemsPrice.Shift(-2)

	serviceFee := itemsPrice.Mul(p.ServiceFeeRate).Round(2)
	taxPrice := itemsPrice.Mul(p.TaxRate).Round(2)
	shipping := p.FlatShipping.Round(2)
	total := itemsPrice.Add(serviceFee).Add(shipping).Add(taxPrice)

	return Amounts{
		ItemsPrice:    itemsPrice.StringFixed(2),
		ServiceFee:    serviceFee.StringFixed(2),
		ShippingPrice: shipping.StringFixed(2),
		TaxPrice:      taxPrice.StringFixed(2),
		TotalPrice:    total.StringFixed(2),
	}
}
