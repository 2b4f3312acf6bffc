// Package jobs publishes order lifecycle events to the notification transport.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the order services.
const (
	EventOrderCreated  = "order.created"
	EventStatusChanged = "order.status_changed"
	EventDeliveryOTP   = "order.delivery_otp"
)

// Event is the envelope delivered to notification consumers.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OrderID    string         `json:"orderId"`
	UserID     string         `json:"userId"`
	Locale     string         `json:"locale,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewEvent stamps a fresh id on an event.
func NewEvent(eventType, orderID, userID, locale string, payload map[string]any, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    orderID,
		UserID:     userID,
		Locale:     locale,
		Payload:    payload,
		OccurredAt: at.UTC(),
	}
}

func (e Event) attributes() map[string]string {
	attrs := map[string]string{"eventId": e.ID, "type": e.Type, "orderId": e.OrderID}
	if e.Locale != "" {
		attrs["locale"] = e.Locale
	}
	return attrs
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events and returns the transport's message id when it has one.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
	Close() error
}
