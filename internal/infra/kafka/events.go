package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/infra/config"
)

const (
	securityEventsTopic = "security.events"
	schemaVersion       = "1.0"
)

// EventPublisher streams security events to kafka keyed by user, so one user's events stay ordered.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    *string           `json:"user_id,omitempty"`
	IPAddress *string           `json:"ip_address,omitempty"`
	Details   string            `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PublishSecurityEvent queues event. It blocks only until the producer accepts the message or ctx ends.
func (p *EventPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   event.ID,
		EventType: string(event.Type),
		UserID:    event.UserID,
		IPAddress: event.IPAddress,
		Details:   event.Details,
		Timestamp: event.Timestamp.UTC(),
		Version:   schemaVersion,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.Topic(),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}
	if event.UserID != nil {
		message.Key = sarama.StringEncoder(*event.UserID)
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.SecurityEventPublisher = (*EventPublisher)(nil)
