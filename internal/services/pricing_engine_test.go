package services

import (
	"testing"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

func TestPriceEngineQuote(t *testing.T) {
	clock := newTestClock()
	engine := NewPriceEngine(clock.Now)
	start := testNow.Add(time.Hour)
	product := Product{
		ID:                "P1",
		Discount:          15,
		IsDiscountActive:  true,
		DiscountStartDate: &start,
		Prices: []PriceTier{
			{Weight: domain.Weight250g, Price: 99, Stock: 1},
			{Weight: domain.Weight500g, Price: 199, Stock: 0},
		},
	}

	quote := engine.Quote(product)
	if quote.DiscountValid || quote.Tiers[0].FinalPrice != 99 {
		t.Fatalf("discount must not apply before its start, got %+v", quote)
	}

	clock.Advance(2 * time.Hour)
	quote = engine.Quote(product)
	if !quote.DiscountValid {
		t.Fatalf("expected discount to be valid")
	}
	// 99 * 0.85 = 84.15, 199 * 0.85 = 169.15
	if quote.Tiers[0].FinalPrice != 84 || quote.Tiers[1].FinalPrice != 169 {
		t.Fatalf("unexpected final prices %+v", quote.Tiers)
	}
	if quote.Tiers[1].Stock != 0 || quote.Tiers[1].Price != 199 {
		t.Fatalf("expected base price and stock to be preserved, got %+v", quote.Tiers[1])
	}
	if got := engine.FinalPrice(10, Product{Discount: 5, IsDiscountActive: true}); got != 10 {
		// 9.5 rounds half-up
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestNegotiateLocale(t *testing.T) {
	cases := []struct {
		name       string
		candidates []string
		want       string
	}{
		{name: "empty", want: DefaultLocale},
		{name: "explicit telugu", candidates: []string{"te"}, want: "te"},
		{name: "accept language", candidates: []string{"", "hi-IN,hi;q=0.9,en;q=0.8"}, want: "hi"},
		{name: "unsupported falls through", candidates: []string{"fr-FR", "te-IN"}, want: "te"},
		{name: "garbage", candidates: []string{"!!"}, want: DefaultLocale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NegotiateLocale(tc.candidates...); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
