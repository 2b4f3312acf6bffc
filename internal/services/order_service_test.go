package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

func TestOrderServiceCODDeliveryAppliesStockOnce(t *testing.T) {
	store := seedStore(t, 10)
	clock := newTestClock()
	notifier := &captureNotifier{}
	svc := newTestOrderService(t, store, clock, notifier, nil)
	ctx := context.Background()

	order := insertOrder(t, store, Order{
		ID: "ord_cod",
		Items: []OrderItem{
			{ProductID: "P1", Weight: domain.Weight500g, UnitPrice: 200, Quantity: 2, LineTotal: 400},
			{ProductID: "P1", Weight: domain.Weight1kg, UnitPrice: 380, Quantity: 1, LineTotal: 380},
		},
	})

	updated, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "delivered", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", updated.Status)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected COD delivery to mark paid, got %s", updated.PaymentStatus)
	}
	if !updated.StockDecremented || updated.DeliveredAt == nil {
		t.Fatalf("expected stock flag and delivered timestamp, got %+v", updated)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 8 {
		t.Fatalf("expected 500g stock 8, got %d", got)
	}
	if got := stockOf(t, store, domain.Weight1kg); got != 9 {
		t.Fatalf("expected 1kg stock 9, got %d", got)
	}

	again, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "delivered", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if again.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered on repeat, got %s", again.Status)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 8 {
		t.Fatalf("expected stock unchanged after repeat, got %d", got)
	}
	if len(notifier.changed) != 1 {
		t.Fatalf("expected one status notification, got %d", len(notifier.changed))
	}
}

func TestOrderServiceOnlineDeliveryKeepsPaymentStatus(t *testing.T) {
	store := seedStore(t, 10)
	svc := newTestOrderService(t, store, newTestClock(), nil, nil)

	order := insertOrder(t, store, Order{ID: "ord_online", PaymentMethod: domain.PaymentMethodOnline, PaymentStatus: domain.PaymentStatusPaid})
	updated, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "delivered"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected Paid to remain, got %s", updated.PaymentStatus)
	}
}

func TestOrderServiceTerminalStatusesAreFrozen(t *testing.T) {
	ctx := context.Background()
	for _, terminal := range []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled} {
		for _, target := range domain.OrderStatuses {
			store := seedStore(t, 10)
			svc := newTestOrderService(t, store, newTestClock(), nil, nil)
			order := insertOrder(t, store, Order{ID: "ord_t", Status: terminal, StockDecremented: terminal == domain.OrderStatusDelivered})

			updated, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: string(target)})
			if terminal == domain.OrderStatusDelivered && target == domain.OrderStatusDelivered {
				if err != nil {
					t.Fatalf("delivered->delivered should be a no-op, got %v", err)
				}
				if updated.Status != terminal {
					t.Fatalf("expected status %s, got %s", terminal, updated.Status)
				}
				continue
			}
			if !errors.Is(err, ErrOrderIllegalTransition) {
				t.Fatalf("%s->%s: expected illegal transition, got %v", terminal, target, err)
			}
			stored, _ := store.Orders().FindByID(ctx, order.ID)
			if stored.Status != terminal {
				t.Fatalf("%s->%s: stored status changed to %s", terminal, target, stored.Status)
			}
		}
	}
}

func TestOrderServiceUpdateStatusErrors(t *testing.T) {
	store := seedStore(t, 10)
	svc := newTestOrderService(t, store, newTestClock(), nil, nil)
	ctx := context.Background()
	order := insertOrder(t, store, Order{ID: "ord_p", Status: domain.OrderStatusPreparing})

	cases := []struct {
		name string
		cmd  UpdateOrderStatusCommand
		want error
	}{
		{name: "invalid status", cmd: UpdateOrderStatusCommand{OrderID: order.ID, Status: "shipped"}, want: ErrOrderInvalidStatus},
		{name: "case sensitive", cmd: UpdateOrderStatusCommand{OrderID: order.ID, Status: "Delivered"}, want: ErrOrderInvalidStatus},
		{name: "unknown order", cmd: UpdateOrderStatusCommand{OrderID: "ord_missing", Status: "confirmed"}, want: ErrOrderNotFound},
		{name: "backwards", cmd: UpdateOrderStatusCommand{OrderID: order.ID, Status: "confirmed"}, want: ErrOrderIllegalTransition},
		{name: "missing id", cmd: UpdateOrderStatusCommand{Status: "confirmed"}, want: ErrOrderInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpdateStatus(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderServiceCancelOnlinePaid(t *testing.T) {
	store := seedStore(t, 10)
	svc := newTestOrderService(t, store, newTestClock(), nil, nil)
	ctx := context.Background()
	order := insertOrder(t, store, Order{ID: "ord_paid", PaymentMethod: domain.PaymentMethodOnline, PaymentStatus: domain.PaymentStatusPaid})

	cancelled, err := svc.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, UserID: "user-1", Reason: "<b>changed</b> my mind"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.PaymentStatus != domain.PaymentStatusRefundPending {
		t.Fatalf("unexpected cancel result %s/%s", cancelled.Status, cancelled.PaymentStatus)
	}
	if cancelled.CancelReason != "changed my mind" {
		t.Fatalf("expected sanitized reason, got %q", cancelled.CancelReason)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 10 {
		t.Fatalf("cancel must not touch stock, got %d", got)
	}

	if _, err := svc.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, UserID: "user-1"}); !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected illegal transition on second cancel, got %v", err)
	}
}

func TestOrderServiceCancelAppliesPaymentTable(t *testing.T) {
	ctx := context.Background()
	for _, method := range []domain.PaymentMethod{domain.PaymentMethodCOD, domain.PaymentMethodOnline} {
		for _, status := range domain.PaymentStatuses {
			store := seedStore(t, 10)
			svc := newTestOrderService(t, store, newTestClock(), nil, nil)
			order := insertOrder(t, store, Order{ID: "ord_tbl", PaymentMethod: method, PaymentStatus: status})

			cancelled, err := svc.Cancel(ctx, CancelOrderCommand{OrderID: order.ID, UserID: "user-1"})
			if err != nil {
				t.Fatalf("%s/%s: cancel: %v", method, status, err)
			}
			want, _ := domain.CancellationPaymentStatus(method, status)
			if cancelled.PaymentStatus != want {
				t.Fatalf("%s/%s: expected %s, got %s", method, status, want, cancelled.PaymentStatus)
			}
		}
	}
}

func TestOrderServiceCancelHidesOtherUsersOrders(t *testing.T) {
	store := seedStore(t, 10)
	svc := newTestOrderService(t, store, newTestClock(), nil, nil)
	order := insertOrder(t, store, Order{ID: "ord_other", UserID: "user-2"})

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.FindOrder(context.Background(), FindOrderQuery{OrderID: order.ID, UserID: "user-1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found on read, got %v", err)
	}
	if _, err := svc.FindOrder(context.Background(), FindOrderQuery{OrderID: order.ID, UserID: "admin", Staff: true}); err != nil {
		t.Fatalf("staff read: %v", err)
	}
}

func TestOrderServiceDeliveryOTPFlow(t *testing.T) {
	store := seedStore(t, 10)
	clock := newTestClock()
	notifier := &captureNotifier{}
	logger := &recordingLogger{}
	svc := newTestOrderService(t, store, clock, notifier, logger)
	ctx := context.Background()
	order := insertOrder(t, store, Order{ID: "ord_otp", Status: domain.OrderStatusPreparing})

	if _, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: order.ID, UserID: "user-1", OTP: "123456"}); !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected illegal transition before otp issued, got %v", err)
	}

	out, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "out_for_delivery", ActorID: "admin"})
	if err != nil {
		t.Fatalf("out for delivery: %v", err)
	}
	if out.DeliveryOTP == nil || out.DeliveryOTP.Hash == "" || out.DeliveryOTP.Hash == "123456" {
		t.Fatalf("expected hashed otp to be stored, got %+v", out.DeliveryOTP)
	}
	if !out.DeliveryOTP.ExpiresAt.Equal(testNow.Add(defaultDeliveryOTPTTL)) {
		t.Fatalf("unexpected expiry %s", out.DeliveryOTP.ExpiresAt)
	}
	if got := notifier.otp(order.ID); got != "123456" {
		t.Fatalf("expected plaintext otp to be dispatched, got %q", got)
	}

	if _, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: order.ID, UserID: "user-2", OTP: "123456"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if _, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: order.ID, UserID: "user-1", OTP: "000000"}); !errors.Is(err, ErrDeliveryOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	stored, _ := store.Orders().FindByID(ctx, order.ID)
	if stored.DeliveryOTP.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", stored.DeliveryOTP.Attempts)
	}
	if len(logger.find("order.delivery_otp.mismatch")) != 1 {
		t.Fatalf("expected mismatch to be logged")
	}

	delivered, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: order.ID, UserID: "user-1", OTP: "123456"})
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if delivered.Status != domain.OrderStatusDelivered || delivered.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected delivered order %s/%s", delivered.Status, delivered.PaymentStatus)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}

	again, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: order.ID, UserID: "user-1", OTP: "999999"})
	if err != nil {
		t.Fatalf("expected idempotent success once delivered, got %v", err)
	}
	if again.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", again.Status)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 8 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestOrderServiceDeliveryOTPExpiryAndAttempts(t *testing.T) {
	store := seedStore(t, 10)
	clock := newTestClock()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:         store.Orders(),
		Clock:          clock.Now,
		OTPTTL:         time.Hour,
		OTPMaxAttempts: 2,
		OTPGenerator:   func() (string, error) { return "654321", nil },
		OTPCost:        4,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	insertOrder(t, store, Order{ID: "ord_a", Status: domain.OrderStatusConfirmed})
	insertOrder(t, store, Order{ID: "ord_b", Status: domain.OrderStatusConfirmed})

	for _, id := range []string{"ord_a", "ord_b"} {
		if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: id, Status: "out_for_delivery"}); err != nil {
			t.Fatalf("out for delivery %s: %v", id, err)
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: "ord_a", UserID: "user-1", OTP: "111111"}); !errors.Is(err, ErrDeliveryOTPMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
	}
	if _, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: "ord_a", UserID: "user-1", OTP: "654321"}); !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected lockout after max attempts, got %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: "ord_b", UserID: "user-1", OTP: "654321"}); !errors.Is(err, ErrDeliveryOTPExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestOrderServiceConcurrentDeliveryPathsDecrementOnce(t *testing.T) {
	store := seedStore(t, 10)
	notifier := &captureNotifier{}
	svc := newTestOrderService(t, store, newTestClock(), notifier, nil)
	ctx := context.Background()
	insertOrder(t, store, Order{ID: "ord_race", Status: domain.OrderStatusPreparing})

	if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_race", Status: "out_for_delivery"}); err != nil {
		t.Fatalf("out for delivery: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_race", Status: "delivered", ActorID: "admin"})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.VerifyDeliveryOTP(ctx, VerifyDeliveryOTPCommand{OrderID: "ord_race", UserID: "user-1", OTP: "123456"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := stockOf(t, store, domain.Weight500g); got != 8 {
		t.Fatalf("expected a single decrement to 8, got %d", got)
	}
}

func TestOrderServiceListAndStats(t *testing.T) {
	store := seedStore(t, 10)
	svc := newTestOrderService(t, store, newTestClock(), nil, nil)
	ctx := context.Background()

	insertOrder(t, store, Order{ID: "ord_1", CreatedAt: testNow.Add(-3 * time.Hour)})
	insertOrder(t, store, Order{ID: "ord_2", CreatedAt: testNow.Add(-2 * time.Hour), Status: domain.OrderStatusCancelled})
	insertOrder(t, store, Order{ID: "ord_3", UserID: "user-2", CreatedAt: testNow.Add(-time.Hour)})

	page, err := svc.ListOrders(ctx, ListOrdersQuery{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "ord_2" {
		t.Fatalf("expected user orders newest first, got %+v", page.Items)
	}

	all, err := svc.ListOrders(ctx, ListOrdersQuery{Statuses: []string{"pending"}})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected two pending orders, got %d", len(all.Items))
	}

	if _, err := svc.ListOrders(ctx, ListOrdersQuery{Statuses: []string{"lost"}}); !errors.Is(err, ErrOrderInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := svc.ListOrders(ctx, ListOrdersQuery{Pagination: Pagination{PageToken: "%%%"}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid page token to be invalid input, got %v", err)
	}

	stats, err := svc.OrderStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalOrders != 3 || stats.TotalRevenue != 800 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
