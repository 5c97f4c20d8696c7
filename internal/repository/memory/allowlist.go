package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/azniosman/vms/internal/core/port"
)

// IPAllowlistStore keeps allowlisted addresses in process memory.
type IPAllowlistStore struct {
	mu      sync.RWMutex
	entries map[string]struct{}
}

// NewIPAllowlistStore returns an empty store.
func NewIPAllowlistStore() *IPAllowlistStore {
	return &IPAllowlistStore{entries: make(map[string]struct{})}
}

var _ port.IPAllowlistStore = (*IPAllowlistStore)(nil)

func (s *IPAllowlistStore) Add(_ context.Context, ip string) error {
	s.mu.Lock()
	s.entries[ip] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *IPAllowlistStore) Remove(_ context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[ip]; !ok {
		return false, nil
	}
	delete(s.entries, ip)
	return true, nil
}

func (s *IPAllowlistStore) Contains(_ context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[ip]
	return ok, nil
}

// List returns the entries in lexical order.
func (s *IPAllowlistStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.entries))
	for ip := range s.entries {
		out = append(out, ip)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}
