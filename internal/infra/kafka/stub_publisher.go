package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka is disabled.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	p.logger.Debug("security event (stream disabled)",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp.UTC()),
	)
	return nil
}

var _ port.SecurityEventPublisher = (*StubPublisher)(nil)
