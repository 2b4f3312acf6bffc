package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/services"
)

type stubOrderService struct {
	updateStatusFunc func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFunc       func(context.Context, services.CancelOrderCommand) (services.Order, error)
	verifyOTPFunc    func(context.Context, services.VerifyDeliveryOTPCommand) (services.Order, error)
	findFunc         func(context.Context, services.FindOrderQuery) (services.Order, error)
	listFunc         func(context.Context, services.ListOrdersQuery) (domain.CursorPage[services.Order], error)
	statsFunc        func(context.Context) (services.OrderStats, error)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) VerifyDeliveryOTP(ctx context.Context, cmd services.VerifyDeliveryOTPCommand) (services.Order, error) {
	if s.verifyOTPFunc != nil {
		return s.verifyOTPFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) FindOrder(ctx context.Context, query services.FindOrderQuery) (services.Order, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, query)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[services.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, query)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) OrderStats(ctx context.Context) (services.OrderStats, error) {
	if s.statsFunc != nil {
		return s.statsFunc(ctx)
	}
	return services.OrderStats{}, nil
}

type stubPaymentReconciler struct {
	checkoutFunc    func(context.Context, services.CheckoutCommand) (services.Order, error)
	createOrderFunc func(context.Context, services.CreatePaymentOrderCommand) (services.PaymentIntent, error)
	verifyFunc      func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
}

func (s *stubPaymentReconciler) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
	if s.checkoutFunc != nil {
		return s.checkoutFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubPaymentReconciler) CreatePaymentOrder(ctx context.Context, cmd services.CreatePaymentOrderCommand) (services.PaymentIntent, error) {
	if s.createOrderFunc != nil {
		return s.createOrderFunc(ctx, cmd)
	}
	return services.PaymentIntent{}, nil
}

func (s *stubPaymentReconciler) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

type stubCatalogService struct {
	getFunc    func(context.Context, string) (services.ProductQuote, error)
	listFunc   func(context.Context, services.ProductFilter) (domain.CursorPage[services.ProductQuote], error)
	upsertFunc func(context.Context, services.UpsertProductCommand) (services.ProductQuote, error)
	deleteFunc func(context.Context, services.DeleteProductCommand) error
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.ProductQuote, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, productID)
	}
	return services.ProductQuote{}, nil
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) (domain.CursorPage[services.ProductQuote], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.ProductQuote]{}, nil
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.ProductQuote, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cmd)
	}
	return services.ProductQuote{}, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, cmd)
	}
	return nil
}

type stubCartService struct {
	getFunc    func(context.Context, string) (services.Cart, error)
	addFunc    func(context.Context, services.AddCartItemCommand) (services.Cart, error)
	updateFunc func(context.Context, services.UpdateCartItemCommand) (services.Cart, error)
	removeFunc func(context.Context, services.RemoveCartItemCommand) (services.Cart, error)
	clearFunc  func(context.Context, string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return nil
}

type stubInventoryLedger struct {
	applyFunc func(context.Context, string) (services.LedgerOutcome, error)
}

func (s *stubInventoryLedger) ApplyOnce(ctx context.Context, orderID string) (services.LedgerOutcome, error) {
	if s.applyFunc != nil {
		return s.applyFunc(ctx, orderID)
	}
	return services.LedgerOutcome{}, nil
}

var (
	_ services.OrderService      = (*stubOrderService)(nil)
	_ services.PaymentReconciler = (*stubPaymentReconciler)(nil)
	_ services.CatalogService    = (*stubCatalogService)(nil)
	_ services.CartService       = (*stubCartService)(nil)
	_ services.InventoryLedger   = (*stubInventoryLedger)(nil)
)

// serve mounts routes under prefix and sends one request, optionally as identity.
func serve(t *testing.T, prefix string, routes RouteRegistrar, identity *auth.Identity, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(prefix, routes)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v (%s)", err, rr.Body.String())
	}
	code, _ := body["error"].(string)
	return code
}
