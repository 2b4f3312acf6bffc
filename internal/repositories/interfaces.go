package repositories

import (
	"context"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Carts() CartRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderChange is the outcome of an OrderMutator. Order is written back as-is; when
// ApplyStock is set and the stored order has not decremented stock yet, the ledger runs
// in the same transaction and flips StockDecremented.
type OrderChange struct {
	Order      domain.Order
	ApplyStock bool
	// Skip leaves the stored order untouched and commits nothing.
	Skip bool
}

// OrderMutator derives the next order state from the one read inside the transaction.
// It may be invoked more than once when the backend retries on contention.
type OrderMutator func(current domain.Order) (OrderChange, error)

// OrderMutation reports the committed order and what the ledger did.
type OrderMutation struct {
	Before domain.Order
	Order  domain.Order
	Ledger domain.LedgerOutcome
}

// OrderRepository persists orders. Every write to an existing order goes through Mutate,
// which serializes writers per order id.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Mutate(ctx context.Context, orderID string, mutate OrderMutator) (OrderMutation, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// ProductRepository reads, upserts and deletes catalog products. Stock is only written by
// the order ledger.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	// Delete removes the product and reports not found when it does not exist. Orders that
	// reference it keep their item snapshots.
	Delete(ctx context.Context, productID string) error
}

// CartRepository persists a single cart per user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Clear(ctx context.Context, userID string, clearedAt time.Time) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings. Results are ordered newest first.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category      string
	AvailableOnly bool
	Pagination    domain.Pagination
}
