package memory

import (
	"context"
	"sync"

	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/repository"
)

// SettingsStore is a map backed settings table.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]string)}
}

var _ port.SettingsStore = (*SettingsStore)(nil)

func (s *SettingsStore) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (s *SettingsStore) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}
