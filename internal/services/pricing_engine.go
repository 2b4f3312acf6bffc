package services

import (
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

type priceEngine struct {
	clock func() time.Time
}

var _ PriceEngine = (*priceEngine)(nil)

// NewPriceEngine returns the price engine used by catalog reads, cart adds and checkout.
// Prices are evaluated against clock on every call.
func NewPriceEngine(clock func() time.Time) PriceEngine {
	if clock == nil {
		clock = time.Now
	}
	return &priceEngine{clock: func() time.Time { return clock().UTC() }}
}

func (e *priceEngine) FinalPrice(base int64, product Product) int64 {
	return domain.FinalPrice(base, product, e.clock())
}

func (e *priceEngine) Quote(product Product) ProductQuote {
	now := e.clock()
	quote := ProductQuote{
		Product:       product,
		Tiers:         make([]QuotedTier, 0, len(product.Prices)),
		DiscountValid: domain.DiscountValid(product, now),
		QuotedAt:      now,
	}
	for _, tier := range product.Prices {
		quote.Tiers = append(quote.Tiers, QuotedTier{
			Weight:     tier.Weight,
			Price:      tier.Price,
			FinalPrice: domain.FinalPrice(tier.Price, product, now),
			Stock:      tier.Stock,
		})
	}
	return quote
}
