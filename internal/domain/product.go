package domain

import "time"

// Product is a catalog entry sold in weight tiers. The discount applies to every tier.
type Product struct {
	ID                string
	Name              string
	Description       string
	Category          string
	Prices            []PriceTier
	Discount          float64
	IsDiscountActive  bool
	DiscountStartDate *time.Time
	DiscountEndDate   *time.Time
	IsAvailable       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PriceTier holds price and stock for one weight.
type PriceTier struct {
	Weight WeightTier
	Price  int64
	Stock  int
}

// Tier returns the price tier for weight.
func (p Product) Tier(weight WeightTier) (PriceTier, bool) {
	for _, tier := range p.Prices {
		if tier.Weight == weight {
			return tier, true
		}
	}
	return PriceTier{}, false
}

// DecrementStock lowers the stock of the given tier by quantity, flooring at zero.
// It reports false when the tier does not exist.
func (p *Product) DecrementStock(weight WeightTier, quantity int) (before int, after int, ok bool) {
	for i := range p.Prices {
		if p.Prices[i].Weight != weight {
			continue
		}
		before = p.Prices[i].Stock
		after = NextStock(before, quantity)
		p.Prices[i].Stock = after
		return before, after, true
	}
	return 0, 0, false
}

// NextStock returns max(0, current-quantity).
func NextStock(current, quantity int) int {
	next := current - quantity
	if next < 0 {
		return 0
	}
	return next
}

// LedgerLine records the stock effect of one order line.
type LedgerLine struct {
	ProductID   string
	Weight      WeightTier
	Quantity    int
	StockBefore int
	StockAfter  int
	Reason      string
}

const (
	// LedgerSkipProductMissing marks a line whose product no longer exists.
	LedgerSkipProductMissing = "product_missing"
	// LedgerSkipTierMissing marks a line whose weight tier no longer exists.
	LedgerSkipTierMissing = "tier_missing"
)

// LedgerOutcome describes what a stock application did for an order.
type LedgerOutcome struct {
	// Applied is true only for the call that flipped the stock flag.
	Applied bool
	Lines   []LedgerLine
	Skipped []LedgerLine
}
