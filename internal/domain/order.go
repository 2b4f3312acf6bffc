package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders. Values are part of the wire contract.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the shop accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the order is being packed.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusOutForDelivery indicates the order left with a courier.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the customer received the order. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// fulfilmentRank orders the non-cancelled statuses along the delivery chain.
var fulfilmentRank = map[OrderStatus]int{
	OrderStatusPending:        0,
	OrderStatusConfirmed:      1,
	OrderStatusPreparing:      2,
	OrderStatusOutForDelivery: 3,
	OrderStatusDelivered:      4,
}

// ParseOrderStatus validates a raw status value. Matching is exact.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	status := OrderStatus(strings.TrimSpace(value))
	for _, candidate := range OrderStatuses {
		if candidate == status {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed out of the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Transition describes how a requested status change must be handled.
type Transition int

const (
	// TransitionForbidden rejects the change.
	TransitionForbidden Transition = iota
	// TransitionNoop leaves the order untouched.
	TransitionNoop
	// TransitionApply moves the order to the requested status.
	TransitionApply
)

// EvaluateTransition decides whether an order in status from may move to status to.
// Movement along the delivery chain is forward-only and may skip steps; cancellation is
// allowed from every non-terminal status; terminal statuses are frozen.
func EvaluateTransition(from, to OrderStatus) Transition {
	if from == to {
		if from == OrderStatusCancelled {
			return TransitionForbidden
		}
		return TransitionNoop
	}
	if from.IsTerminal() {
		return TransitionForbidden
	}
	if to == OrderStatusCancelled {
		return TransitionApply
	}
	fromRank, okFrom := fulfilmentRank[from]
	toRank, okTo := fulfilmentRank[to]
	if !okFrom || !okTo || toRank < fromRank {
		return TransitionForbidden
	}
	return TransitionApply
}

// PaymentMethod enumerates how the customer pays. Immutable after creation.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "COD"
	// PaymentMethodOnline is a gateway payment verified before the order exists.
	PaymentMethodOnline PaymentMethod = "Online"
)

// ParsePaymentMethod validates a raw payment method value.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch method := PaymentMethod(strings.TrimSpace(value)); method {
	case PaymentMethodCOD, PaymentMethodOnline:
		return method, true
	default:
		return "", false
	}
}

// PaymentStatus enumerates the payment bookkeeping states. Values are part of the wire contract.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "Pending"
	PaymentStatusPaid          PaymentStatus = "Paid"
	PaymentStatusFailed        PaymentStatus = "Failed"
	PaymentStatusRefundPending PaymentStatus = "Refund Pending"
)

// PaymentStatuses lists every payment status.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefundPending,
}

var cancellationPaymentTable = map[PaymentMethod]map[PaymentStatus]PaymentStatus{
	PaymentMethodOnline: {
		PaymentStatusPending:       PaymentStatusPending,
		PaymentStatusPaid:          PaymentStatusRefundPending,
		PaymentStatusFailed:        PaymentStatusFailed,
		PaymentStatusRefundPending: PaymentStatusRefundPending,
	},
	PaymentMethodCOD: {
		PaymentStatusPending:       PaymentStatusFailed,
		PaymentStatusPaid:          PaymentStatusFailed,
		PaymentStatusFailed:        PaymentStatusFailed,
		PaymentStatusRefundPending: PaymentStatusFailed,
	},
}

// CancellationPaymentStatus returns the payment status an order takes when cancelled.
// ok is false when the pair is outside the known enums.
func CancellationPaymentStatus(method PaymentMethod, current PaymentStatus) (PaymentStatus, bool) {
	row, ok := cancellationPaymentTable[method]
	if !ok {
		return "", false
	}
	next, ok := row[current]
	return next, ok
}

// WeightTier is one of the fixed package sizes a product is sold in.
type WeightTier string

const (
	Weight250g WeightTier = "250g"
	Weight500g WeightTier = "500g"
	Weight1kg  WeightTier = "1kg"
)

// WeightTiers lists the supported package sizes.
var WeightTiers = []WeightTier{Weight250g, Weight500g, Weight1kg}

// ParseWeightTier validates a raw weight value.
func ParseWeightTier(value string) (WeightTier, bool) {
	weight := WeightTier(strings.TrimSpace(value))
	for _, candidate := range WeightTiers {
		if candidate == weight {
			return weight, true
		}
	}
	return "", false
}

// Order captures the persisted order aggregate.
type Order struct {
	ID               string
	UserID           string
	Items            []OrderItem
	TotalAmount      int64
	Currency         string
	Address          Address
	DeliveryDate     string
	DeliveryTime     string
	Status           OrderStatus
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	Payment          *OrderPayment
	StockDecremented bool
	DeliveryOTP      *DeliveryOTP
	Locale           string
	CancelReason     string
	UpdatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
}

// OrderItem is a purchased line; LineTotal is UnitPrice × Quantity.
type OrderItem struct {
	ProductID   string
	ProductName string
	Weight      WeightTier
	UnitPrice   int64
	Quantity    int
	LineTotal   int64
}

// OrderPayment references the gateway records that proved an online payment.
type OrderPayment struct {
	Provider        string
	ProviderOrderID string
	PaymentID       string
	VerifiedAt      time.Time
}

// DeliveryOTP stores the hashed one-time code used to confirm delivery.
type DeliveryOTP struct {
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Attempts  int
}

// LineTotal computes unit price times quantity.
func LineTotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}

// SumLineTotals adds the line totals of the given items.
func SumLineTotals(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal
	}
	return total
}

// OrderStatusStats aggregates orders sharing a status.
type OrderStatusStats struct {
	Count       int64
	TotalAmount int64
}

// OrderStats summarises all orders for the admin dashboard. Revenue excludes cancelled orders.
type OrderStats struct {
	TotalOrders  int64
	TotalRevenue int64
	ByStatus     map[OrderStatus]OrderStatusStats
}

// Add folds a single order into the stats.
func (s *OrderStats) Add(status OrderStatus, amount int64) {
	s.AddGroup(status, 1, amount)
}

// AddGroup folds count orders of one status totalling amount into the stats.
func (s *OrderStats) AddGroup(status OrderStatus, count, amount int64) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[OrderStatus]OrderStatusStats, len(OrderStatuses))
	}
	entry := s.ByStatus[status]
	entry.Count += count
	entry.TotalAmount += amount
	s.ByStatus[status] = entry
	s.TotalOrders += count
	if status != OrderStatusCancelled {
		s.TotalRevenue += amount
	}
}
