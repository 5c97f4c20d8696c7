package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
)

// SecurityEventRepository appends audit rows. Rows are never updated or deleted.
type SecurityEventRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewSecurityEventRepository(exec pgExecutor) *SecurityEventRepository {
	return &SecurityEventRepository{exec: exec, builder: newBuilder()}
}

// RecordSecurityEvent inserts event. A replayed event id is ignored.
func (r *SecurityEventRepository) RecordSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	stmt, args, err := r.builder.Insert("security_events").
		Columns("id", "event_type", "user_id", "details", "ip_address", "created_at").
		Values(event.ID, string(event.Type), event.UserID, event.Details, event.IPAddress, event.Timestamp).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

var _ port.SecurityEventStore = (*SecurityEventRepository)(nil)
