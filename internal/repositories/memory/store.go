// Package memory provides process-local repositories used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/pagination"
	"github.com/picklepantry/api/internal/repositories"
)

// Store keeps orders, products and carts behind one mutex so order mutations and the stock
// ledger commit as a single unit.
type Store struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	products map[string]domain.Product
	carts    map[string]domain.Cart
	health   repositories.HealthRepository
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		carts:    make(map[string]domain.Cart),
	}
}

var _ repositories.Registry = (*Store)(nil)

// Orders returns the order repository view.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{s} }

// Products returns the product repository view.
func (s *Store) Products() repositories.ProductRepository { return productRepository{s} }

// Carts returns the cart repository view.
func (s *Store) Carts() repositories.CartRepository { return cartRepository{s} }

// Health reports the store as always healthy unless a repository was attached.
func (s *Store) Health() repositories.HealthRepository {
	if s.health != nil {
		return s.health
	}
	return staticHealth{}
}

// WithHealth attaches a dependency health repository.
func (s *Store) WithHealth(health repositories.HealthRepository) *Store {
	s.health = health
	return s
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	now := time.Now().UTC()
	return domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"memory": {Status: domain.HealthStatusOK, Detail: "ok", CheckedAt: now},
		},
		GeneratedAt: now,
	}, nil
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return repositories.NewStoreError("memory.orders.insert", repositories.StoreErrorConflict, "order already exists", nil)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("memory.orders.get", "order not found")
	}
	return cloneOrder(order), nil
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize)

	r.s.mu.Lock()
	matches := make([]domain.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, order.Status) {
			continue
		}
		if !cursor.After(order.CreatedAt, order.ID) {
			continue
		}
		matches = append(matches, cloneOrder(order))
	}
	r.s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	page := domain.CursorPage[domain.Order]{Items: matches}
	if len(matches) > pageSize {
		page.Items = matches[:pageSize]
		last := page.Items[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r orderRepository) Mutate(ctx context.Context, orderID string, mutate repositories.OrderMutator) (repositories.OrderMutation, error) {
	if err := ctx.Err(); err != nil {
		return repositories.OrderMutation{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.orders[orderID]
	if !ok {
		return repositories.OrderMutation{}, repositories.NotFound("memory.orders.mutate", "order not found")
	}
	before := cloneOrder(current)

	change, err := mutate(cloneOrder(current))
	if err != nil {
		return repositories.OrderMutation{}, err
	}
	if change.Skip {
		return repositories.OrderMutation{Before: before, Order: before}, nil
	}

	next := cloneOrder(repositories.ResolveOrderChange(before, change))

	var outcome domain.LedgerOutcome
	if change.ApplyStock && !before.StockDecremented {
		loaded := make(map[string]domain.Product)
		for _, id := range repositories.LedgerProductIDs(next.Items) {
			if product, ok := r.s.products[id]; ok {
				loaded[id] = product
			}
		}
		changed, planned := repositories.PlanStockDecrement(next.Items, loaded)
		for id, product := range changed {
			r.s.products[id] = product
		}
		outcome = planned
		outcome.Applied = true
		next.StockDecremented = true
	}

	r.s.orders[orderID] = next
	return repositories.OrderMutation{Before: before, Order: cloneOrder(next), Ledger: outcome}, nil
}

func (r orderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderStats{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := domain.OrderStats{ByStatus: make(map[domain.OrderStatus]domain.OrderStatusStats)}
	for _, order := range r.s.orders {
		stats.Add(order.Status, order.TotalAmount)
	}
	return stats, nil
}

type productRepository struct{ s *Store }

func (r productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NotFound("memory.products.get", "product not found")
	}
	return cloneProduct(product), nil
}

func (r productRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if err := ctx.Err(); err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize)

	r.s.mu.Lock()
	matches := make([]domain.Product, 0, len(r.s.products))
	for _, product := range r.s.products {
		if filter.Category != "" && !strings.EqualFold(product.Category, filter.Category) {
			continue
		}
		if filter.AvailableOnly && !product.IsAvailable {
			continue
		}
		if !cursor.After(product.CreatedAt, product.ID) {
			continue
		}
		matches = append(matches, cloneProduct(product))
	}
	r.s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	page := domain.CursorPage[domain.Product]{Items: matches}
	if len(matches) > pageSize {
		page.Items = matches[:pageSize]
		last := page.Items[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r productRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.products[product.ID]; ok && !existing.CreatedAt.IsZero() {
		product.CreatedAt = existing.CreatedAt
	}
	r.s.products[product.ID] = cloneProduct(product)
	return cloneProduct(product), nil
}

func (r productRepository) Delete(ctx context.Context, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[productID]; !ok {
		return repositories.NotFound("memory.products.delete", "product not found")
	}
	delete(r.s.products, productID)
	return nil
}

type cartRepository struct{ s *Store }

func (r cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cart, ok := r.s.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	return cloneCart(cart), nil
}

func (r cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID string, clearedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.carts[userID] = domain.Cart{UserID: userID, UpdatedAt: clearedAt}
	return nil
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func cloneOrder(order domain.Order) domain.Order {
	clone := order
	if order.Items != nil {
		clone.Items = append([]domain.OrderItem(nil), order.Items...)
	}
	if order.Payment != nil {
		payment := *order.Payment
		clone.Payment = &payment
	}
	if order.DeliveryOTP != nil {
		otp := *order.DeliveryOTP
		clone.DeliveryOTP = &otp
	}
	if order.DeliveredAt != nil {
		ts := *order.DeliveredAt
		clone.DeliveredAt = &ts
	}
	if order.CancelledAt != nil {
		ts := *order.CancelledAt
		clone.CancelledAt = &ts
	}
	return clone
}

func cloneProduct(product domain.Product) domain.Product {
	clone := product
	if product.Prices != nil {
		clone.Prices = append([]domain.PriceTier(nil), product.Prices...)
	}
	return clone
}

func cloneCart(cart domain.Cart) domain.Cart {
	clone := cart
	if cart.Items != nil {
		clone.Items = append([]domain.CartItem(nil), cart.Items...)
	}
	return clone
}
