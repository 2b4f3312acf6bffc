package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by order id, so one order's events land
// on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a writer for brokers and topic that waits for the leader ack.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish implements Publisher. Kafka has no message id, so the event id is returned.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) (string, error) {
	data, err := event.encode()
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	headers := make([]kafka.Header, 0, 4)
	for k, v := range event.attributes() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	msg := kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   data,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write %s: %w", event.Type, err)
	}
	return event.ID, nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
