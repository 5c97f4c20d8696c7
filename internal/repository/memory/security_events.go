package memory

import (
	"context"
	"sync"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
)

// SecurityEventStore appends events to a slice. Duplicate ids are ignored like the
// ON CONFLICT DO NOTHING insert in postgres.
type SecurityEventStore struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	seen   map[string]struct{}
}

func NewSecurityEventStore() *SecurityEventStore {
	return &SecurityEventStore{seen: make(map[string]struct{})}
}

var _ port.SecurityEventStore = (*SecurityEventStore)(nil)

func (s *SecurityEventStore) RecordSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[event.ID]; dup {
		return nil
	}
	s.seen[event.ID] = struct{}{}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *SecurityEventStore) Events() []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// OfType filters Events by type.
func (s *SecurityEventStore) OfType(eventType domain.SecurityEventType) []domain.SecurityEvent {
	var out []domain.SecurityEvent
	for _, e := range s.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
