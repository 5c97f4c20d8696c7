package port

import (
	"context"

	"github.com/azniosman/vms/internal/core/domain"
)

// SecurityEventStore is the authoritative append-only audit sink.
type SecurityEventStore interface {
	RecordSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}

// SecurityEventPublisher streams audit facts to downstream consumers on a best-effort basis.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}

// SecurityAuditor records security events without ever dropping them silently.
type SecurityAuditor interface {
	Record(ctx context.Context, event domain.SecurityEvent)
}
