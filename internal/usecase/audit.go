package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	appLogger "github.com/azniosman/vms/internal/infra/logger"
	"github.com/azniosman/vms/internal/infra/telemetry"
)

const (
	defaultAuditRetries = 3
	defaultAuditBackoff = 100 * time.Millisecond
)

// AuditTrail writes security events to the primary store with retries, falls back to a
// local log line when the store keeps failing, and streams a copy to the publisher.
type AuditTrail struct {
	store     port.SecurityEventStore
	publisher port.SecurityEventPublisher
	logger    *zap.Logger
	fallback  *zap.Logger
	metrics   *telemetry.SecurityMetrics
	retries   int
	backoff   time.Duration
	sleep     func(context.Context, time.Duration)
}

// NewAuditTrail constructs an audit trail over store. publisher may be nil.
func NewAuditTrail(store port.SecurityEventStore, publisher port.SecurityEventPublisher, logger *zap.Logger) *AuditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{
		store:     store,
		publisher: publisher,
		logger:    logger,
		fallback:  appLogger.AuditFallback(logger),
		retries:   defaultAuditRetries,
		backoff:   defaultAuditBackoff,
		sleep:     sleepContext,
	}
}

// WithRetry sets how many times a failed store write is retried and the base backoff.
func (a *AuditTrail) WithRetry(retries int, backoff time.Duration) *AuditTrail {
	if retries >= 0 {
		a.retries = retries
	}
	if backoff >= 0 {
		a.backoff = backoff
	}
	return a
}

// WithFallbackLogger replaces the logger that receives events the store rejected.
func (a *AuditTrail) WithFallbackLogger(logger *zap.Logger) *AuditTrail {
	if logger != nil {
		a.fallback = logger
	}
	return a
}

// WithMetrics counts where events end up.
func (a *AuditTrail) WithMetrics(metrics *telemetry.SecurityMetrics) *AuditTrail {
	a.metrics = metrics
	return a
}

// Record persists event. It never returns an error: an event that cannot be stored is logged locally.
// Cancellation of ctx does not abort the write.
func (a *AuditTrail) Record(ctx context.Context, event domain.SecurityEvent) {
	if event.ID == "" {
		event.ID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	ctx = context.WithoutCancel(ctx)

	stored := false
	var lastErr error
	if a.store != nil {
		for attempt := 0; attempt <= a.retries; attempt++ {
			if attempt > 0 {
				a.sleep(ctx, a.backoff*time.Duration(1<<(attempt-1)))
			}
			if lastErr = a.store.RecordSecurityEvent(ctx, event); lastErr == nil {
				stored = true
				break
			}
			a.logger.Warn("security event write failed",
				zap.String("event_id", event.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}
	}

	if stored {
		a.metrics.AuditEvent("stored")
	} else {
		a.metrics.AuditEvent("fallback")
		a.fallback.Error("security event not persisted", append(eventFields(event), zap.Error(lastErr))...)
	}

	if a.publisher != nil {
		if err := a.publisher.PublishSecurityEvent(ctx, event); err != nil {
			a.metrics.PublishFailure()
			a.logger.Warn("security event publish failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

// newEventID must not panic: ENTROPY_DEGRADED is recorded while crypto/rand is failing.
func newEventID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("evt-%x", time.Now().UnixNano())
}

func eventFields(event domain.SecurityEvent) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("details", event.Details),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", *event.UserID))
	}
	if event.IPAddress != nil {
		fields = append(fields, zap.String("ip_address", *event.IPAddress))
	}
	return fields
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

var _ port.SecurityAuditor = (*AuditTrail)(nil)
