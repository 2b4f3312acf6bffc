package jobs

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the log. Used for local runs without a broker.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher; a nil logger discards events.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher. The payload is omitted since it may carry a delivery code.
func (p *LogPublisher) Publish(_ context.Context, event Event) (string, error) {
	p.logger.Info("notification.published",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("locale", event.Locale),
	)
	return event.ID, nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}
