package jobs

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes events to a Pub/Sub topic, ordered per order id.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher wraps topic. Message ordering is enabled so events for one order keep
// their publish order.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}, nil
}

// Publish implements Publisher.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) (string, error) {
	data, err := event.encode()
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  event.attributes(),
		OrderingKey: event.OrderID,
	})
	id, err := result.Get(ctx)
	if err != nil {
		p.topic.ResumePublish(event.OrderID)
		return "", fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return id, nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}
