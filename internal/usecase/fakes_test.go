package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/repository"
)

var errStoreDown = errors.New("store unreachable")

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[string]domain.User
	findErr error
	saveErr error
	saves   int
}

func newFakeUserStore(users ...domain.User) *fakeUserStore {
	store := &fakeUserStore{users: make(map[string]domain.User)}
	for _, u := range users {
		store.users[u.ID] = u
	}
	return store
}

func (s *fakeUserStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if u.Username == username {
			copy := u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if u, ok := s.users[id]; ok {
		copy := u
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (s *fakeUserStore) Save(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) get(id string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func (a *recordingAuditor) Record(_ context.Context, event domain.SecurityEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) ofType(eventType domain.SecurityEventType) []domain.SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.SecurityEvent
	for _, e := range a.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (a *recordingAuditor) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

// countingHasher wraps the real hasher and counts Verify calls.
type countingHasher struct {
	*security.PBKDF2Hasher
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(password, hash, salt string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PBKDF2Hasher.Verify(password, hash, salt)
}

func (h *countingHasher) verifyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

// gatedHasher parks Verify calls for one password until release is closed.
type gatedHasher struct {
	*countingHasher
	password string
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGatedHasher(inner *countingHasher, password string) *gatedHasher {
	return &gatedHasher{
		countingHasher: inner,
		password:       password,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (h *gatedHasher) Verify(password, hash, salt string) (bool, error) {
	if password == h.password {
		h.once.Do(func() { close(h.entered) })
		<-h.release
	}
	return h.countingHasher.Verify(password, hash, salt)
}

func newTestHasher(t *testing.T) *countingHasher {
	t.Helper()
	cfg := security.DefaultPBKDF2Config()
	cfg.Iterations = 1000
	h, err := security.NewPBKDF2Hasher(cfg, security.NewKeyMaterial())
	if err != nil {
		t.Fatalf("NewPBKDF2Hasher: %v", err)
	}
	return &countingHasher{PBKDF2Hasher: h}
}

func newTestUser(t *testing.T, hasher *countingHasher, id, username, password string, role domain.Role) domain.User {
	t.Helper()
	hash, salt, err := hasher.Hash(password, "")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// testClock is a manually advanced clock safe for concurrent reads.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
