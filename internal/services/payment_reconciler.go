package services

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/payments"
	"github.com/picklepantry/api/internal/platform/textutil"
	"github.com/picklepantry/api/internal/repositories"
)

const (
	orderIDPrefix         = "ord_"
	paymentOwnerNote      = "userId"
	defaultOrderCurrency  = "INR"
	maxCheckoutLines      = 50
	maxLineQuantity       = 100
	maxAddressFieldLength = 200
	maxScheduleLength     = 64
)

// PaymentGateway is the subset of the payments manager the reconciler needs.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.OrderRequest) (payments.Intent, error)
	Verify(ctx context.Context, paymentCtx payments.PaymentContext, proof payments.Proof) (payments.Settlement, bool, error)
}

// PaymentReconcilerDeps bundles collaborators required to construct the reconciler.
type PaymentReconcilerDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Carts       repositories.CartRepository
	Prices      PriceEngine
	Gateway     PaymentGateway
	Notifier    Notifier
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type paymentReconciler struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	carts    repositories.CartRepository
	prices   PriceEngine
	gateway  PaymentGateway
	notifier Notifier
	currency string
	clock    func() time.Time
	newID    func() string
	logger   Logger
}

var _ PaymentReconciler = (*paymentReconciler)(nil)

// NewPaymentReconciler wires dependencies into the checkout and payment verification flows.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (PaymentReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment reconciler: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("payment reconciler: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	prices := deps.Prices
	if prices == nil {
		prices = NewPriceEngine(clock)
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}

	return &paymentReconciler{
		orders:   deps.Orders,
		products: deps.Products,
		carts:    deps.Carts,
		prices:   prices,
		gateway:  deps.Gateway,
		notifier: notifier,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Checkout creates a cash-on-delivery order. Online orders only come from VerifyPayment.
func (r *paymentReconciler) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutValidation, cmd.PaymentMethod)
	}
	if method == domain.PaymentMethodOnline {
		return Order{}, fmt.Errorf("%w: online orders are created by payment verification", ErrCheckoutValidation)
	}

	order, err := r.prepareOrder(ctx, cmd)
	if err != nil {
		return Order{}, err
	}
	order.ID = orderIDPrefix + r.newID()
	order.PaymentMethod = domain.PaymentMethodCOD
	order.PaymentStatus = domain.PaymentStatusPending

	if err := r.orders.Insert(ctx, order); err != nil {
		return Order{}, mapOrderError(ctx, r.logger, "checkout.insert", order.ID, err)
	}
	r.completeCheckout(ctx, order)
	return order, nil
}

func (r *paymentReconciler) CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentIntent, error) {
	if r.gateway == nil {
		return PaymentIntent{}, fmt.Errorf("%w: no payment gateway configured", ErrPaymentUnavailable)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: user id is required", ErrCheckoutValidation)
	}
	items, err := r.resolveItems(ctx, userID, cmd.Items)
	if err != nil {
		return PaymentIntent{}, err
	}
	currency := r.resolveCurrency(cmd.Currency)
	amount := domain.SumLineTotals(items)

	intent, err := r.gateway.CreateOrder(ctx, payments.PaymentContext{
		PreferredProvider: cmd.Provider,
		Currency:          currency,
	}, payments.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  "rcpt_" + r.newID(),
		Notes:    map[string]string{paymentOwnerNote: userID},
	})
	if err != nil {
		return PaymentIntent{}, mapGatewayError(err)
	}

	r.logger(ctx, "payment.order.created", map[string]any{
		"user_id":           userID,
		"provider":          intent.Provider,
		"provider_order_id": intent.ProviderOrderID,
		"amount":            amount,
	})
	return PaymentIntent{
		Provider:        intent.Provider,
		IntentID:        intent.IntentID,
		ProviderOrderID: intent.ProviderOrderID,
		Amount:          amount,
		Currency:        currency,
		KeyID:           intent.KeyID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// VerifyPayment checks the gateway proof first and creates a paid Online order only when it
// holds and the gateway charged the recomputed total to the same user. The order id is
// derived from the provider order so a replayed proof cannot create a second order.
func (r *paymentReconciler) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	if r.gateway == nil {
		return Order{}, fmt.Errorf("%w: no payment gateway configured", ErrPaymentUnavailable)
	}
	proof := payments.Proof{
		ProviderOrderID: strings.TrimSpace(cmd.ProviderOrderID),
		PaymentID:       strings.TrimSpace(cmd.PaymentID),
		Signature:       strings.TrimSpace(cmd.Signature),
	}
	settlement, ok, err := r.gateway.Verify(ctx, payments.PaymentContext{
		PreferredProvider: cmd.Provider,
		Currency:          r.resolveCurrency(cmd.Checkout.Currency),
	}, proof)
	if err != nil {
		r.logger(ctx, "payment.verification.error", map[string]any{
			"provider_order_id": proof.ProviderOrderID,
			"error":             err.Error(),
		})
		return Order{}, mapGatewayError(err)
	}
	if !ok {
		r.logger(ctx, "payment.verification.failed", map[string]any{
			"user_id":           cmd.Checkout.UserID,
			"provider":          settlement.Provider,
			"provider_order_id": proof.ProviderOrderID,
			"payment_id":        proof.PaymentID,
		})
		return Order{}, ErrPaymentVerificationFailed
	}

	order, err := r.prepareOrder(ctx, cmd.Checkout)
	if err != nil {
		r.rejectSettled(ctx, settlement, proof, cmd.Checkout.UserID, err.Error())
		return Order{}, err
	}
	if reason := settlementMismatch(settlement, order); reason != "" {
		r.rejectSettled(ctx, settlement, proof, order.UserID, reason)
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, reason)
	}

	order.ID = orderIDPrefix + paymentOrderKey(settlement.Provider, proof.ProviderOrderID)
	order.PaymentMethod = domain.PaymentMethodOnline
	order.PaymentStatus = domain.PaymentStatusPaid
	order.Payment = &domain.OrderPayment{
		Provider:        settlement.Provider,
		ProviderOrderID: proof.ProviderOrderID,
		PaymentID:       proof.PaymentID,
		VerifiedAt:      order.CreatedAt,
	}

	if err := r.orders.Insert(ctx, order); err != nil {
		if repositories.IsConflict(err) {
			return r.existingPaidOrder(ctx, order)
		}
		return Order{}, mapOrderError(ctx, r.logger, "payment.verify.insert", order.ID, err)
	}
	r.completeCheckout(ctx, order)
	return order, nil
}

// rejectSettled records a captured payment that produced no order so it can be refunded.
func (r *paymentReconciler) rejectSettled(ctx context.Context, settlement payments.Settlement, proof payments.Proof, userID, reason string) {
	r.logger(ctx, "payment.verified.order_rejected", map[string]any{
		"user_id":           strings.TrimSpace(userID),
		"provider":          settlement.Provider,
		"provider_order_id": proof.ProviderOrderID,
		"payment_id":        proof.PaymentID,
		"amount":            settlement.Amount,
		"currency":          settlement.Currency,
		"reason":            reason,
	})
}

// settlementMismatch returns why the gateway charge cannot pay for order, or "" when it can.
func settlementMismatch(settlement payments.Settlement, order Order) string {
	if owner := strings.TrimSpace(settlement.Notes[paymentOwnerNote]); owner != order.UserID {
		return "payment was opened for another user"
	}
	if !strings.EqualFold(settlement.Currency, order.Currency) {
		return fmt.Sprintf("charged in %s, order is in %s", settlement.Currency, order.Currency)
	}
	if settlement.Amount != order.TotalAmount {
		return fmt.Sprintf("charged %d, order totals %d", settlement.Amount, order.TotalAmount)
	}
	return ""
}

func (r *paymentReconciler) existingPaidOrder(ctx context.Context, attempted Order) (Order, error) {
	existing, err := r.orders.FindByID(ctx, attempted.ID)
	if err != nil {
		return Order{}, mapOrderError(ctx, r.logger, "payment.verify.lookup", attempted.ID, err)
	}
	if existing.UserID != attempted.UserID || existing.Payment == nil || existing.Payment.PaymentID != attempted.Payment.PaymentID {
		return Order{}, fmt.Errorf("%w: provider order already settled", ErrOrderConflict)
	}
	return existing, nil
}

// prepareOrder validates the checkout and builds the order with server-side prices.
func (r *paymentReconciler) prepareOrder(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutValidation)
	}
	address := sanitizeAddress(cmd.Address)
	if !address.Deliverable() {
		return Order{}, fmt.Errorf("%w: delivery address needs a street and pincode", ErrCheckoutValidation)
	}
	items, err := r.resolveItems(ctx, userID, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	total := domain.SumLineTotals(items)
	if cmd.ClientTotal > 0 && cmd.ClientTotal != total {
		r.logger(ctx, "checkout.total.mismatch", map[string]any{
			"user_id":      userID,
			"client_total": cmd.ClientTotal,
			"server_total": total,
		})
	}

	now := r.clock()
	return Order{
		UserID:       userID,
		Items:        items,
		TotalAmount:  total,
		Currency:     r.resolveCurrency(cmd.Currency),
		Address:      address,
		DeliveryDate: textutil.CleanLimit(cmd.DeliveryDate, maxScheduleLength),
		DeliveryTime: textutil.CleanLimit(cmd.DeliveryTime, maxScheduleLength),
		Status:       domain.OrderStatusPending,
		Locale:       NegotiateLocale(cmd.Locale),
		UpdatedBy:    userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// resolveItems prices the requested lines from the catalog, falling back to the cart.
// Lines sharing product and weight are merged.
func (r *paymentReconciler) resolveItems(ctx context.Context, userID string, requested []CheckoutItem) ([]OrderItem, error) {
	if len(requested) == 0 && r.carts != nil {
		cart, err := r.carts.Get(ctx, userID)
		if err != nil && !repositories.IsNotFound(err) {
			return nil, fmt.Errorf("checkout: load cart: %w", err)
		}
		for _, item := range cart.Items {
			requested = append(requested, CheckoutItem{
				ProductID: item.ProductID,
				Weight:    string(item.Weight),
				Quantity:  item.Quantity,
			})
		}
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrCheckoutValidation)
	}
	if len(requested) > maxCheckoutLines {
		return nil, fmt.Errorf("%w: too many items", ErrCheckoutValidation)
	}

	products := make(map[string]Product, len(requested))
	items := make([]OrderItem, 0, len(requested))
	index := make(map[string]int, len(requested))

	for i, line := range requested {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: items[%d].productId is required", ErrCheckoutValidation, i)
		}
		weight, ok := domain.ParseWeightTier(line.Weight)
		if !ok {
			return nil, fmt.Errorf("%w: items[%d].selectedWeight %q is not a supported weight", ErrCheckoutValidation, i, line.Weight)
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return nil, fmt.Errorf("%w: items[%d].quantity must be between 1 and %d", ErrCheckoutValidation, i, maxLineQuantity)
		}

		product, ok := products[productID]
		if !ok {
			loaded, err := r.products.FindByID(ctx, productID)
			if err != nil {
				return nil, mapCatalogError(err, ErrCheckoutValidation)
			}
			product = loaded
			products[productID] = product
		}
		if !product.IsAvailable {
			return nil, fmt.Errorf("%w: product %s is not available", ErrCheckoutValidation, productID)
		}
		tier, ok := product.Tier(weight)
		if !ok {
			return nil, fmt.Errorf("%w: product %s is not sold in %s", ErrCheckoutValidation, productID, weight)
		}

		key := productID + "|" + string(weight)
		if pos, ok := index[key]; ok {
			items[pos].Quantity += line.Quantity
			items[pos].LineTotal = domain.LineTotal(items[pos].UnitPrice, items[pos].Quantity)
			continue
		}
		unitPrice := r.prices.FinalPrice(tier.Price, product)
		index[key] = len(items)
		items = append(items, OrderItem{
			ProductID:   productID,
			ProductName: product.Name,
			Weight:      weight,
			UnitPrice:   unitPrice,
			Quantity:    line.Quantity,
			LineTotal:   domain.LineTotal(unitPrice, line.Quantity),
		})
	}
	return items, nil
}

func (r *paymentReconciler) completeCheckout(ctx context.Context, order Order) {
	r.logger(ctx, "order.created", map[string]any{
		"order_id":       order.ID,
		"user_id":        order.UserID,
		"payment_method": string(order.PaymentMethod),
		"total_amount":   order.TotalAmount,
	})
	if r.carts != nil {
		if err := r.carts.Clear(ctx, order.UserID, order.CreatedAt); err != nil && !repositories.IsNotFound(err) {
			r.logger(ctx, "cart.clear.failed", map[string]any{
				"order_id": order.ID,
				"user_id":  order.UserID,
				"error":    err.Error(),
			})
		}
	}
	r.notifier.NotifyOrderCreated(ctx, order)
}

func (r *paymentReconciler) resolveCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return r.currency
	}
	return currency
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest), errors.Is(err, payments.ErrUnsupportedProvider):
		return fmt.Errorf("%w: %v", ErrCheckoutValidation, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
}

var orderKeyEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// paymentOrderKey derives a ULID-shaped key from the provider order reference.
func paymentOrderKey(provider, providerOrderID string) string {
	sum := sha256.Sum256([]byte(provider + "|" + providerOrderID))
	return orderKeyEncoding.EncodeToString(sum[:])[:26]
}

func sanitizeAddress(address Address) Address {
	return Address{
		Name:    textutil.CleanLimit(address.Name, maxAddressFieldLength),
		Phone:   textutil.CleanLimit(address.Phone, 32),
		Street:  textutil.CleanLimit(address.Street, maxAddressFieldLength),
		City:    textutil.CleanLimit(address.City, maxAddressFieldLength),
		State:   textutil.CleanLimit(address.State, maxAddressFieldLength),
		Pincode: textutil.CleanLimit(address.Pincode, 16),
	}
}
