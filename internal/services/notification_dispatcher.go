package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/picklepantry/api/internal/platform/jobs"
)

const defaultNotificationTimeout = 10 * time.Second

// NotificationDispatcherDeps bundles collaborators required to construct the dispatcher.
type NotificationDispatcherDeps struct {
	Publisher jobs.Publisher
	Timeout   time.Duration
	Clock     func() time.Time
	Logger    Logger
}

// NotificationDispatcher publishes order events on background goroutines. Publish failures
// are logged and never reach the request that triggered them.
type NotificationDispatcher struct {
	publisher jobs.Publisher
	timeout   time.Duration
	clock     func() time.Time
	logger    Logger
	inflight  sync.WaitGroup
}

var _ Notifier = (*NotificationDispatcher)(nil)

// NewNotificationDispatcher wires the dispatcher over a publisher.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (*NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationDispatcher{
		publisher: deps.Publisher,
		timeout:   timeout,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (d *NotificationDispatcher) NotifyOrderCreated(ctx context.Context, order Order) {
	d.dispatch(ctx, jobs.NewEvent(jobs.EventOrderCreated, order.ID, order.UserID, order.Locale, map[string]any{
		"status":        string(order.Status),
		"paymentMethod": string(order.PaymentMethod),
		"paymentStatus": string(order.PaymentStatus),
		"totalAmount":   order.TotalAmount,
		"currency":      order.Currency,
		"itemCount":     len(order.Items),
		"deliveryDate":  order.DeliveryDate,
		"deliveryTime":  order.DeliveryTime,
	}, d.clock()))
}

func (d *NotificationDispatcher) NotifyStatusChanged(ctx context.Context, order Order, previous OrderStatus) {
	d.dispatch(ctx, jobs.NewEvent(jobs.EventStatusChanged, order.ID, order.UserID, order.Locale, map[string]any{
		"previousStatus": string(previous),
		"status":         string(order.Status),
		"paymentStatus":  string(order.PaymentStatus),
	}, d.clock()))
}

func (d *NotificationDispatcher) NotifyDeliveryOTP(ctx context.Context, order Order, code string) {
	payload := map[string]any{"otp": code}
	if order.DeliveryOTP != nil {
		payload["expiresAt"] = order.DeliveryOTP.ExpiresAt.Format(time.RFC3339)
	}
	d.dispatch(ctx, jobs.NewEvent(jobs.EventDeliveryOTP, order.ID, order.UserID, order.Locale, payload, d.clock()))
}

// Wait blocks until in-flight publishes finish or ctx is done.
func (d *NotificationDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, event jobs.Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	base := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		publishCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		id, err := d.publisher.Publish(publishCtx, event)
		if err != nil {
			d.logger(base, "notification.dispatch.failed", map[string]any{
				"order_id": event.OrderID,
				"type":     event.Type,
				"event_id": event.ID,
				"error":    err.Error(),
			})
			return
		}
		d.logger(base, "notification.dispatched", map[string]any{
			"order_id":   event.OrderID,
			"type":       event.Type,
			"message_id": id,
		})
	}()
}
