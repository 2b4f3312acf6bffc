package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/repositories"
	"github.com/picklepantry/api/internal/repositories/memory"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testNow} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type loggedEvent struct {
	name   string
	fields map[string]any
}

type recordingLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (l *recordingLogger) Log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, loggedEvent{name: event, fields: fields})
}

func (l *recordingLogger) find(name string) []loggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []loggedEvent
	for _, e := range l.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type captureNotifier struct {
	mu      sync.Mutex
	created []Order
	changed []Order
	otps    map[string]string
}

func (c *captureNotifier) NotifyOrderCreated(_ context.Context, order Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, order)
}

func (c *captureNotifier) NotifyStatusChanged(_ context.Context, order Order, _ OrderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = append(c.changed, order)
}

func (c *captureNotifier) NotifyDeliveryOTP(_ context.Context, order Order, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.otps == nil {
		c.otps = map[string]string{}
	}
	c.otps[order.ID] = code
}

func (c *captureNotifier) otp(orderID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.otps[orderID]
}

// seedStore creates a memory store with product P1 (250g/500g/1kg at 120/200/380) and the
// given stock on every tier.
func seedStore(t *testing.T, stock int) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	_, err := store.Products().Upsert(context.Background(), domain.Product{
		ID:   "P1",
		Name: "Mango pickle",
		Prices: []domain.PriceTier{
			{Weight: domain.Weight250g, Price: 120, Stock: stock},
			{Weight: domain.Weight500g, Price: 200, Stock: stock},
			{Weight: domain.Weight1kg, Price: 380, Stock: stock},
		},
		IsAvailable: true,
		CreatedAt:   testNow.Add(-48 * time.Hour),
		UpdatedAt:   testNow.Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return store
}

func insertOrder(t *testing.T, store *memory.Store, order Order) Order {
	t.Helper()
	if order.UserID == "" {
		order.UserID = "user-1"
	}
	if len(order.Items) == 0 {
		order.Items = []OrderItem{{ProductID: "P1", ProductName: "Mango pickle", Weight: domain.Weight500g, UnitPrice: 200, Quantity: 2, LineTotal: 400}}
	}
	order.TotalAmount = domain.SumLineTotals(order.Items)
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = domain.PaymentMethodCOD
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.PaymentStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = testNow.Add(-time.Hour)
		order.UpdatedAt = order.CreatedAt
	}
	if err := store.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order
}

func stockOf(t *testing.T, store *memory.Store, weight domain.WeightTier) int {
	t.Helper()
	product, err := store.Products().FindByID(context.Background(), "P1")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	tier, ok := product.Tier(weight)
	if !ok {
		t.Fatalf("tier %s missing", weight)
	}
	return tier.Stock
}

func newTestOrderService(t *testing.T, store *memory.Store, clock *testClock, notifier Notifier, logger *recordingLogger) OrderService {
	t.Helper()
	deps := OrderServiceDeps{
		Orders:       store.Orders(),
		Notifier:     notifier,
		Clock:        clock.Now,
		OTPGenerator: func() (string, error) { return "123456", nil },
		OTPCost:      bcrypt.MinCost,
	}
	if logger != nil {
		deps.Logger = logger.Log
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func orderFilterAll() repositories.OrderListFilter {
	return repositories.OrderListFilter{Pagination: Pagination{PageSize: 100}}
}
