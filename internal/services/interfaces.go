package services

import (
	"context"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderStats         = domain.OrderStats
	Product            = domain.Product
	PriceTier          = domain.PriceTier
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Address            = domain.Address
	LedgerOutcome      = domain.LedgerOutcome
	LedgerLine         = domain.LedgerLine
	SystemHealthReport = domain.SystemHealthReport
)

// Logger is the structured event logger every service accepts.
type Logger func(ctx context.Context, event string, fields map[string]any)

// OrderService owns the order state machine. Every write runs through a single per-order
// mutation so status, payment status and stock commit together.
type OrderService interface {
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	VerifyDeliveryOTP(ctx context.Context, cmd VerifyDeliveryOTPCommand) (Order, error)
	FindOrder(ctx context.Context, query FindOrderQuery) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error)
	OrderStats(ctx context.Context) (OrderStats, error)
}

// InventoryLedger applies the one-time stock decrement of a delivered order.
type InventoryLedger interface {
	ApplyOnce(ctx context.Context, orderID string) (LedgerOutcome, error)
}

// PaymentReconciler bridges checkout and gateway payment proofs to order creation.
type PaymentReconciler interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
	CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentIntent, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// PriceEngine resolves display and charge prices at read time.
type PriceEngine interface {
	FinalPrice(base int64, product Product) int64
	Quote(product Product) ProductQuote
}

// Notifier fans order events out to customers. Implementations never block the caller.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order Order)
	NotifyStatusChanged(ctx context.Context, order Order, previous OrderStatus)
	NotifyDeliveryOTP(ctx context.Context, order Order, code string)
}

// CatalogService serves products with their current prices and lets operators seed them.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (ProductQuote, error)
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[ProductQuote], error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (ProductQuote, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
}

// CartService manages the per-user cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// UpdateOrderStatusCommand moves an order along the state machine. Status is the raw wire value.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// CancelOrderCommand cancels an order on behalf of its owner.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// VerifyDeliveryOTPCommand confirms delivery with the code the customer received.
type VerifyDeliveryOTPCommand struct {
	OrderID string
	UserID  string
	OTP     string
}

// FindOrderQuery loads one order. Non-staff callers only see their own orders.
type FindOrderQuery struct {
	OrderID string
	UserID  string
	Staff   bool
}

// ListOrdersQuery lists orders newest first. An empty UserID lists every user's orders.
type ListOrdersQuery struct {
	UserID     string
	Statuses   []string
	Pagination Pagination
}

// CheckoutItem is a requested line. Prices always come from the catalog.
type CheckoutItem struct {
	ProductID string
	Weight    string
	Quantity  int
}

// CheckoutCommand places an order. Items fall back to the user's cart when empty.
// ClientTotal is informational and never trusted.
type CheckoutCommand struct {
	UserID        string
	Items         []CheckoutItem
	Address       Address
	DeliveryDate  string
	DeliveryTime  string
	PaymentMethod string
	Currency      string
	Locale        string
	ClientTotal   int64
}

// CreatePaymentOrderCommand opens a gateway order for the server-computed total.
type CreatePaymentOrderCommand struct {
	UserID   string
	Items    []CheckoutItem
	Currency string
	Provider string
}

// PaymentIntent is returned to the client to complete payment with the gateway.
type PaymentIntent struct {
	Provider        string
	IntentID        string
	ProviderOrderID string
	Amount          int64
	Currency        string
	KeyID           string
	ClientSecret    string
}

// VerifyPaymentCommand carries the gateway proof plus the order to create once it holds.
type VerifyPaymentCommand struct {
	Checkout        CheckoutCommand
	Provider        string
	ProviderOrderID string
	PaymentID       string
	Signature       string
}

// QuotedTier is a price tier with its discounted price resolved.
type QuotedTier struct {
	Weight     domain.WeightTier
	Price      int64
	FinalPrice int64
	Stock      int
}

// ProductQuote is a product as shown to customers at a point in time.
type ProductQuote struct {
	Product       Product
	Tiers         []QuotedTier
	DiscountValid bool
	QuotedAt      time.Time
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category           string
	IncludeUnavailable bool
	Pagination         Pagination
}

// UpsertProductCommand creates or replaces a catalog product.
type UpsertProductCommand struct {
	Product Product
	ActorID string
}

// DeleteProductCommand removes a product from the catalog.
type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

// AddCartItemCommand adds a product tier to the cart, merging with an existing row.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Weight    string
	Quantity  int
}

// UpdateCartItemCommand replaces the quantity of a cart row.
type UpdateCartItemCommand struct {
	UserID    string
	ProductID string
	Weight    string
	Quantity  int
}

// RemoveCartItemCommand drops a cart row.
type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
	Weight    string
}
