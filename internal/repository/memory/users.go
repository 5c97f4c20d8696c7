package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/repository"
)

// UserStore keeps user records in process memory. Lookups by username are case-sensitive,
// matching the unique index on users.username.
type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]domain.User
	byUsername map[string]string
}

func NewUserStore(users ...domain.User) *UserStore {
	s := &UserStore{
		byID:       make(map[string]domain.User),
		byUsername: make(map[string]string),
	}
	for _, u := range users {
		s.put(u)
	}
	return s
}

var _ port.UserStore = (*UserStore)(nil)

func (s *UserStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.TrimSpace(username)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.byID[id]
	return &u, nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// Save inserts or replaces the record keyed by user.ID.
func (s *UserStore) Save(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byID[user.ID]; ok && prev.Username != user.Username {
		delete(s.byUsername, prev.Username)
	}
	s.put(user)
	return nil
}

func (s *UserStore) put(user domain.User) {
	s.byID[user.ID] = user
	s.byUsername[user.Username] = user.ID
}
