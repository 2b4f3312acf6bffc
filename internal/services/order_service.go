package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/textutil"
	"github.com/picklepantry/api/internal/repositories"
)

const (
	defaultDeliveryOTPTTL         = 24 * time.Hour
	defaultDeliveryOTPMaxAttempts = 5
	deliveryOTPDigits             = 6
	maxCancelReasonLength         = 500
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Notifier Notifier
	Clock    func() time.Time
	Logger   Logger

	OTPTTL         time.Duration
	OTPMaxAttempts int
	// OTPGenerator returns a fresh plaintext delivery code. Defaults to six crypto/rand digits.
	OTPGenerator func() (string, error)
	// OTPCost is the bcrypt cost for stored codes. Defaults to bcrypt.DefaultCost.
	OTPCost int
}

type orderService struct {
	orders         repositories.OrderRepository
	notifier       Notifier
	clock          func() time.Time
	logger         Logger
	otpTTL         time.Duration
	otpMaxAttempts int
	newOTP         func() (string, error)
	otpCost        int
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	ttl := deps.OTPTTL
	if ttl <= 0 {
		ttl = defaultDeliveryOTPTTL
	}
	maxAttempts := deps.OTPMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultDeliveryOTPMaxAttempts
	}
	newOTP := deps.OTPGenerator
	if newOTP == nil {
		newOTP = generateDeliveryOTP
	}
	cost := deps.OTPCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &orderService{
		orders:   deps.Orders,
		notifier: notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:         logger,
		otpTTL:         ttl,
		otpMaxAttempts: maxAttempts,
		newOTP:         newOTP,
		otpCost:        cost,
	}, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, cmd.Status)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	actor := strings.TrimSpace(cmd.ActorID)

	// The code is hashed before the transaction so a retried mutator stays cheap.
	var issued *issuedOTP
	if target == domain.OrderStatusOutForDelivery {
		otp, err := s.issueOTP()
		if err != nil {
			return Order{}, err
		}
		issued = otp
	}

	now := s.clock()
	result, err := s.orders.Mutate(ctx, orderID, func(current Order) (repositories.OrderChange, error) {
		switch domain.EvaluateTransition(current.Status, target) {
		case domain.TransitionForbidden:
			return repositories.OrderChange{}, fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, current.Status, target)
		case domain.TransitionNoop:
			return repositories.OrderChange{Skip: true}, nil
		}
		return s.transition(current, target, actor, now, issued), nil
	})
	if err != nil {
		return Order{}, mapOrderError(ctx, s.logger, "order.update_status", orderID, err)
	}

	s.afterMutation(ctx, result, issued)
	return result.Order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}
	reason := textutil.CleanLimit(cmd.Reason, maxCancelReasonLength)

	now := s.clock()
	result, err := s.orders.Mutate(ctx, orderID, func(current Order) (repositories.OrderChange, error) {
		if current.UserID != userID {
			return repositories.OrderChange{}, ErrOrderNotFound
		}
		if current.Status.IsTerminal() {
			return repositories.OrderChange{}, fmt.Errorf("%w: order is %s", ErrOrderIllegalTransition, current.Status)
		}
		change := s.transition(current, domain.OrderStatusCancelled, userID, now, nil)
		change.Order.CancelReason = reason
		return change, nil
	})
	if err != nil {
		return Order{}, mapOrderError(ctx, s.logger, "order.cancel", orderID, err)
	}

	s.afterMutation(ctx, result, nil)
	return result.Order, nil
}

func (s *orderService) VerifyDeliveryOTP(ctx context.Context, cmd VerifyDeliveryOTPCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	code := strings.TrimSpace(cmd.OTP)
	if orderID == "" || userID == "" || code == "" {
		return Order{}, fmt.Errorf("%w: order id and otp are required", ErrOrderInvalidInput)
	}

	now := s.clock()
	var mismatch bool
	result, err := s.orders.Mutate(ctx, orderID, func(current Order) (repositories.OrderChange, error) {
		mismatch = false
		if current.UserID != userID {
			return repositories.OrderChange{}, ErrOrderNotFound
		}
		switch {
		case current.Status == domain.OrderStatusDelivered:
			return repositories.OrderChange{Skip: true}, nil
		case current.Status == domain.OrderStatusCancelled:
			return repositories.OrderChange{}, fmt.Errorf("%w: order is cancelled", ErrOrderIllegalTransition)
		case current.DeliveryOTP == nil:
			return repositories.OrderChange{}, fmt.Errorf("%w: no delivery otp issued", ErrOrderIllegalTransition)
		case now.After(current.DeliveryOTP.ExpiresAt):
			return repositories.OrderChange{}, ErrDeliveryOTPExpired
		case current.DeliveryOTP.Attempts >= s.otpMaxAttempts:
			return repositories.OrderChange{}, fmt.Errorf("%w: too many otp attempts", ErrOrderIllegalTransition)
		}

		if bcrypt.CompareHashAndPassword([]byte(current.DeliveryOTP.Hash), []byte(code)) != nil {
			mismatch = true
			otp := *current.DeliveryOTP
			otp.Attempts++
			current.DeliveryOTP = &otp
			current.UpdatedAt = now
			return repositories.OrderChange{Order: current}, nil
		}
		return s.transition(current, domain.OrderStatusDelivered, userID, now, nil), nil
	})
	if err != nil {
		return Order{}, mapOrderError(ctx, s.logger, "order.verify_delivery_otp", orderID, err)
	}
	if mismatch {
		attempts := 0
		if result.Order.DeliveryOTP != nil {
			attempts = result.Order.DeliveryOTP.Attempts
		}
		s.logger(ctx, "order.delivery_otp.mismatch", map[string]any{"order_id": orderID, "attempts": attempts})
		return Order{}, ErrDeliveryOTPMismatch
	}

	s.afterMutation(ctx, result, nil)
	return result.Order, nil
}

func (s *orderService) FindOrder(ctx context.Context, query FindOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderError(ctx, s.logger, "order.find", orderID, err)
	}
	if !query.Staff && order.UserID != strings.TrimSpace(query.UserID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error) {
	filter := repositories.OrderListFilter{
		UserID:     strings.TrimSpace(query.UserID),
		Pagination: query.Pagination,
	}
	for _, raw := range query.Statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, raw)
		}
		filter.Status = append(filter.Status, status)
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderError(ctx, s.logger, "order.list", "", err)
	}
	return page, nil
}

func (s *orderService) OrderStats(ctx context.Context) (OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return OrderStats{}, mapOrderError(ctx, s.logger, "order.stats", "", err)
	}
	if stats.ByStatus == nil {
		stats.ByStatus = map[OrderStatus]domain.OrderStatusStats{}
	}
	return stats, nil
}

// transition applies the side effects of entering target. Stock is requested on delivery
// and only applied by the repository when the order has not decremented yet.
func (s *orderService) transition(order Order, target OrderStatus, actor string, now time.Time, otp *issuedOTP) repositories.OrderChange {
	order.Status = target
	order.UpdatedAt = now
	if actor != "" {
		order.UpdatedBy = actor
	}
	change := repositories.OrderChange{}

	switch target {
	case domain.OrderStatusDelivered:
		delivered := now
		order.DeliveredAt = &delivered
		order.DeliveryOTP = nil
		if order.PaymentMethod == domain.PaymentMethodCOD {
			order.PaymentStatus = domain.PaymentStatusPaid
		}
		change.ApplyStock = true
	case domain.OrderStatusCancelled:
		cancelled := now
		order.CancelledAt = &cancelled
		order.DeliveryOTP = nil
		if next, ok := domain.CancellationPaymentStatus(order.PaymentMethod, order.PaymentStatus); ok {
			order.PaymentStatus = next
		}
	case domain.OrderStatusOutForDelivery:
		if otp != nil {
			order.DeliveryOTP = &domain.DeliveryOTP{
				Hash:      otp.hash,
				IssuedAt:  now,
				ExpiresAt: now.Add(s.otpTTL),
			}
		}
	}

	change.Order = order
	return change
}

func (s *orderService) afterMutation(ctx context.Context, result repositories.OrderMutation, otp *issuedOTP) {
	logLedgerOutcome(ctx, s.logger, result.Order.ID, result.Ledger)
	if result.Before.Status == result.Order.Status {
		return
	}
	s.logger(ctx, "order.status.changed", map[string]any{
		"order_id":       result.Order.ID,
		"previous":       string(result.Before.Status),
		"status":         string(result.Order.Status),
		"payment_status": string(result.Order.PaymentStatus),
		"actor":          result.Order.UpdatedBy,
	})
	s.notifier.NotifyStatusChanged(ctx, result.Order, result.Before.Status)
	if otp != nil && result.Order.Status == domain.OrderStatusOutForDelivery && result.Order.DeliveryOTP != nil {
		s.notifier.NotifyDeliveryOTP(ctx, result.Order, otp.code)
	}
}

type issuedOTP struct {
	code string
	hash string
}

func (s *orderService) issueOTP() (*issuedOTP, error) {
	code, err := s.newOTP()
	if err != nil {
		return nil, fmt.Errorf("order: generate delivery otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.otpCost)
	if err != nil {
		return nil, fmt.Errorf("order: hash delivery otp: %w", err)
	}
	return &issuedOTP{code: code, hash: string(hash)}, nil
}

func generateDeliveryOTP() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", deliveryOTPDigits, n.Int64()), nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyOrderCreated(context.Context, Order) {}

func (noopNotifier) NotifyStatusChanged(context.Context, Order, OrderStatus) {}

func (noopNotifier) NotifyDeliveryOTP(context.Context, Order, string) {}
