package repositories

import (
	domain "github.com/picklepantry/api/internal/domain"
)

// LedgerProductIDs returns the distinct product ids referenced by items, in line order.
func LedgerProductIDs(items []domain.OrderItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// PlanStockDecrement applies every order line to the loaded products and returns the
// products that changed. Backends load products inside their transaction, call this, then
// write the returned products together with the order flag. Missing products or tiers are
// reported in Skipped.
func PlanStockDecrement(items []domain.OrderItem, products map[string]domain.Product) (map[string]domain.Product, domain.LedgerOutcome) {
	changed := make(map[string]domain.Product, len(products))
	outcome := domain.LedgerOutcome{
		Lines: make([]domain.LedgerLine, 0, len(items)),
	}

	for _, item := range items {
		line := domain.LedgerLine{
			ProductID: item.ProductID,
			Weight:    item.Weight,
			Quantity:  item.Quantity,
		}

		product, ok := changed[item.ProductID]
		if !ok {
			product, ok = products[item.ProductID]
			if ok {
				product = cloneProduct(product)
			}
		}
		if !ok {
			line.Reason = domain.LedgerSkipProductMissing
			outcome.Skipped = append(outcome.Skipped, line)
			continue
		}

		before, after, found := product.DecrementStock(item.Weight, item.Quantity)
		if !found {
			line.Reason = domain.LedgerSkipTierMissing
			outcome.Skipped = append(outcome.Skipped, line)
			continue
		}
		line.StockBefore = before
		line.StockAfter = after
		outcome.Lines = append(outcome.Lines, line)
		changed[item.ProductID] = product
	}

	return changed, outcome
}

func cloneProduct(product domain.Product) domain.Product {
	clone := product
	if product.Prices != nil {
		clone.Prices = append([]domain.PriceTier(nil), product.Prices...)
	}
	return clone
}

// ResolveOrderChange returns the order a backend should persist for change, restoring the
// fields a mutator is never allowed to alter. StockDecremented is owned by the backend.
func ResolveOrderChange(before domain.Order, change OrderChange) domain.Order {
	next := change.Order
	next.ID = before.ID
	next.UserID = before.UserID
	next.CreatedAt = before.CreatedAt
	next.PaymentMethod = before.PaymentMethod
	next.Items = before.Items
	next.TotalAmount = before.TotalAmount
	next.StockDecremented = before.StockDecremented
	return next
}
