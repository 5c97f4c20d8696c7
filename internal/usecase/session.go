package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/infra/telemetry"
)

const (
	// DefaultSessionTimeout is the idle time after which a session expires.
	DefaultSessionTimeout = 30 * time.Minute

	maxTokenCollisions = 3
)

// SessionRegistry is the in-memory table of active sessions. A restart invalidates every session.
type SessionRegistry struct {
	tokens  port.KeyMaterialProvider
	timeout time.Duration
	logger  *zap.Logger
	metrics *telemetry.SecurityMetrics
	now     func() time.Time
	expired func([]domain.UserSession)

	mu       sync.Mutex
	sessions map[string]*domain.UserSession
}

// NewSessionRegistry constructs a registry drawing session ids from tokens.
func NewSessionRegistry(tokens port.KeyMaterialProvider, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = security.NewKeyMaterial()
	}
	return &SessionRegistry{
		tokens:   tokens,
		timeout:  DefaultSessionTimeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*domain.UserSession),
	}
}

// WithTimeout sets the idle timeout.
func (r *SessionRegistry) WithTimeout(timeout time.Duration) *SessionRegistry {
	if timeout > 0 {
		r.timeout = timeout
	}
	return r
}

// WithClock overrides the internal clock for deterministic tests.
func (r *SessionRegistry) WithClock(clock func() time.Time) *SessionRegistry {
	if clock != nil {
		r.now = clock
	}
	return r
}

// WithMetrics reports the active session gauge and evictions.
func (r *SessionRegistry) WithMetrics(metrics *telemetry.SecurityMetrics) *SessionRegistry {
	r.metrics = metrics
	return r
}

// OnExpired registers a callback receiving sessions evicted for inactivity. It runs outside the registry lock.
func (r *SessionRegistry) OnExpired(fn func([]domain.UserSession)) *SessionRegistry {
	r.expired = fn
	return r
}

// Timeout returns the idle timeout.
func (r *SessionRegistry) Timeout() time.Duration { return r.timeout }

// Create registers a new session and returns its id.
func (r *SessionRegistry) Create(userID, username string, role domain.Role, ip string) (string, error) {
	for i := 0; i < maxTokenCollisions; i++ {
		id, err := r.tokens.SessionToken()
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}

		now := r.now()
		r.mu.Lock()
		if _, taken := r.sessions[id]; taken {
			r.mu.Unlock()
			continue
		}
		r.sessions[id] = &domain.UserSession{
			ID:           id,
			UserID:       userID,
			Username:     username,
			Role:         role,
			LoginTime:    now,
			LastActivity: now,
			IPAddress:    ip,
		}
		count := len(r.sessions)
		r.mu.Unlock()

		r.metrics.SessionsActive(count)
		return id, nil
	}
	return "", fmt.Errorf("generate session id: %d consecutive collisions", maxTokenCollisions)
}

// Validate reports whether id names a live session, refreshing its activity on success
// and evicting it when expired.
func (r *SessionRegistry) Validate(id string) bool {
	_, ok := r.lookup(id, true)
	return ok
}

// Touch refreshes the activity timestamp of a live session.
func (r *SessionRegistry) Touch(id string) {
	r.lookup(id, true)
}

// Get returns a copy of a live session without refreshing it.
func (r *SessionRegistry) Get(id string) (domain.UserSession, bool) {
	return r.lookup(id, false)
}

// Role returns the role snapshot of a live session or ErrInvalidSession.
func (r *SessionRegistry) Role(id string) (domain.Role, error) {
	sess, ok := r.lookup(id, false)
	if !ok {
		return "", ErrInvalidSession
	}
	return sess.Role, nil
}

// Destroy removes the session and reports whether it existed.
func (r *SessionRegistry) Destroy(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.metrics.SessionsActive(count)
	}
	return ok
}

// IDsForUser lists the ids of sessions owned by userID.
func (r *SessionRegistry) IDsForUser(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, sess := range r.sessions {
		if sess.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids
}

// SweepExpired evicts every session idle for longer than the timeout.
func (r *SessionRegistry) SweepExpired() int {
	now := r.now()

	r.mu.Lock()
	var evicted []domain.UserSession
	for id, sess := range r.sessions {
		if sess.ExpiredAt(now, r.timeout) {
			evicted = append(evicted, *sess)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	r.finishEviction(evicted, count)
	return len(evicted)
}

// Count returns the number of sessions held, expired or not.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) lookup(id string, touch bool) (domain.UserSession, bool) {
	if id == "" {
		return domain.UserSession{}, false
	}
	now := r.now()

	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return domain.UserSession{}, false
	}
	if sess.ExpiredAt(now, r.timeout) {
		evicted := *sess
		delete(r.sessions, id)
		count := len(r.sessions)
		r.mu.Unlock()
		r.finishEviction([]domain.UserSession{evicted}, count)
		return domain.UserSession{}, false
	}
	if touch {
		sess.Touch(now)
	}
	out := *sess
	r.mu.Unlock()
	return out, true
}

func (r *SessionRegistry) finishEviction(evicted []domain.UserSession, remaining int) {
	if len(evicted) == 0 {
		return
	}
	r.metrics.SessionsExpired(len(evicted))
	r.metrics.SessionsActive(remaining)
	if r.expired != nil {
		r.expired(evicted)
	}
}

var _ port.SessionRegistry = (*SessionRegistry)(nil)
