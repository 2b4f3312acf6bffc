package domain

import "time"

// Cart is the per-user basket. Items are unique by product and weight.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem is a single product/weight entry within a cart.
type CartItem struct {
	ProductID string
	Weight    WeightTier
	UnitPrice int64
	Quantity  int
	LineTotal int64
	AddedAt   time.Time
}

// Merge adds item to the cart. An existing product/weight pair gains the quantity and
// keeps its unit price; otherwise the item is appended.
func (c *Cart) Merge(item CartItem) CartItem {
	for i := range c.Items {
		existing := &c.Items[i]
		if existing.ProductID == item.ProductID && existing.Weight == item.Weight {
			existing.Quantity += item.Quantity
			existing.LineTotal = LineTotal(existing.UnitPrice, existing.Quantity)
			return *existing
		}
	}
	item.LineTotal = LineTotal(item.UnitPrice, item.Quantity)
	c.Items = append(c.Items, item)
	return item
}

// SetQuantity replaces the quantity of an existing entry.
func (c *Cart) SetQuantity(productID string, weight WeightTier, quantity int) bool {
	for i := range c.Items {
		existing := &c.Items[i]
		if existing.ProductID == productID && existing.Weight == weight {
			existing.Quantity = quantity
			existing.LineTotal = LineTotal(existing.UnitPrice, quantity)
			return true
		}
	}
	return false
}

// Remove drops the entry for product and weight.
func (c *Cart) Remove(productID string, weight WeightTier) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].Weight == weight {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}
