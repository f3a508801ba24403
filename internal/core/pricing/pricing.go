// Package pricing computes receipt totals. Amounts are rounded to cents.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	VATRate   = decimal.RequireFromString("0.2")
	PromoRate = decimal.RequireFromString("0.8")

	ErrNegativeAmount  = errors.New("amount must be non-negative")
	ErrDiscountPercent = errors.New("discount percent must be between 0 and 100")
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	VAT      decimal.Decimal `json:"vat"`
}

func PromotionalPrice(regular decimal.Decimal) (decimal.Decimal, error) {
	if regular.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return regular.Mul(PromoRate).Round(2), nil
}

func VAT(total decimal.Decimal) (decimal.Decimal, error) {
	if total.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return total.Mul(VATRate).Round(2), nil
}

// Calculate applies the loyalty discount to the subtotal; VAT is a share of the discounted total.
func Calculate(lines []Line, cardPercent int) (Quote, error) {
	if cardPercent < 0 || cardPercent > 100 {
		return Quote{}, ErrDiscountPercent
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		if l.UnitPrice.IsNegative() || l.Quantity < 0 {
			return Quote{}, ErrNegativeAmount
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	discount := subtotal.Mul(decimal.NewFromInt(int64(cardPercent))).Div(decimal.NewFromInt(100)).Round(2)
	total := subtotal.Sub(discount).Round(2)
	vat, err := VAT(total)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Subtotal: subtotal.Round(2),
		Discount: discount,
		Total:    total,
		VAT:      vat,
	}, nil
}
