package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountValid reports whether the product discount applies at now. Absent bounds are open.
func DiscountValid(product Product, now time.Time) bool {
	if !product.IsDiscountActive {
		return false
	}
	if product.DiscountStartDate != nil && now.Before(*product.DiscountStartDate) {
		return false
	}
	if product.DiscountEndDate != nil && now.After(*product.DiscountEndDate) {
		return false
	}
	return true
}

// FinalPrice applies the product discount to base when valid at now, rounding half-up to
// whole currency units.
func FinalPrice(base int64, product Product, now time.Time) int64 {
	if !DiscountValid(product, now) {
		return base
	}
	discount := product.Discount
	if discount < 0 {
		discount = 0
	}
	if discount > 100 {
		discount = 100
	}
	factor := hundred.Sub(decimal.NewFromFloat(discount)).Div(hundred)
	price := decimal.NewFromInt(base).Mul(factor)
	// decimal.Round rounds half away from zero, which is half-up for non-negative prices.
	return price.Round(0).IntPart()
}
