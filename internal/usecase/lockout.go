package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	appLogger "github.com/azniosman/vms/internal/infra/logger"
	"github.com/azniosman/vms/internal/repository"
)

const (
	// DefaultMaxLoginAttempts is the number of consecutive failures that locks an account.
	DefaultMaxLoginAttempts = 3
	// DefaultLockoutDuration is how long a locked account rejects logins.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutStatus is a point-in-time view of one username's lockout state.
type LockoutStatus struct {
	Locked         bool
	Until          time.Time
	FailedAttempts int
}

// LockoutOutcome describes the effect of a recorded failure.
type LockoutOutcome struct {
	FailedAttempts int
	// Locked is true only on the failure that crossed the threshold.
	Locked bool
	Until  time.Time
}

// LockoutPolicy tracks consecutive failed logins per username.
// Counters of known users live on the user record; usernames without a record are tracked
// in memory so that unknown and real accounts lock identically.
type LockoutPolicy struct {
	users       port.UserStore
	maxAttempts int
	duration    time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	locks   map[string]*usernameLock
	phantom map[string]*phantomRecord
}

type usernameLock struct {
	mu   sync.Mutex
	refs int
}

type phantomRecord struct {
	failed      int
	lockedUntil time.Time
	lastAttempt time.Time
}

// LockoutOption configures a LockoutPolicy.
type LockoutOption func(*LockoutPolicy)

// WithMaxAttempts sets the failure threshold.
func WithMaxAttempts(n int) LockoutOption {
	return func(p *LockoutPolicy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets how long a lock lasts.
func WithLockoutDuration(d time.Duration) LockoutOption {
	return func(p *LockoutPolicy) {
		if d > 0 {
			p.duration = d
		}
	}
}

// WithLockoutClock overrides the clock for deterministic tests.
func WithLockoutClock(clock func() time.Time) LockoutOption {
	return func(p *LockoutPolicy) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithLockoutLogger attaches a logger.
func WithLockoutLogger(logger *zap.Logger) LockoutOption {
	return func(p *LockoutPolicy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewLockoutPolicy constructs a policy persisting counters through users.
func NewLockoutPolicy(users port.UserStore, opts ...LockoutOption) *LockoutPolicy {
	p := &LockoutPolicy{
		users:       users,
		maxAttempts: DefaultMaxLoginAttempts,
		duration:    DefaultLockoutDuration,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		locks:       make(map[string]*usernameLock),
		phantom:     make(map[string]*phantomRecord),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the configured threshold.
func (p *LockoutPolicy) MaxAttempts() int { return p.maxAttempts }

// Duration returns the configured lock length.
func (p *LockoutPolicy) Duration() time.Duration { return p.duration }

// Status reports whether username is locked. user is the record loaded by the caller, or nil when absent.
func (p *LockoutPolicy) Status(username string, user *domain.User) LockoutStatus {
	now := p.now()

	if user != nil {
		status := LockoutStatus{FailedAttempts: user.FailedLoginAttempts}
		if user.IsLockedAt(now) {
			status.Locked = true
			status.Until = *user.LockoutUntil
		}
		return status
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.phantom[username]
	if !ok {
		return LockoutStatus{}
	}
	status := LockoutStatus{FailedAttempts: rec.failed}
	if now.Before(rec.lockedUntil) {
		status.Locked = true
		status.Until = rec.lockedUntil
	}
	return status
}

// RegisterFailure increments the failure counter for username, locking it when the threshold is reached.
// Concurrent calls for the same username are serialized around a fresh read of the record.
func (p *LockoutPolicy) RegisterFailure(ctx context.Context, username string) (LockoutOutcome, error) {
	unlock := p.lockUsername(username)
	defer unlock()

	now := p.now()

	user, err := p.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return p.registerPhantomFailure(username, now), nil
		}
		return LockoutOutcome{}, persistenceError("load user for lockout", err)
	}

	// An elapsed lock starts a fresh window.
	if user.LockoutUntil != nil && !now.Before(*user.LockoutUntil) {
		user.ClearLockout()
	}

	user.FailedLoginAttempts++
	outcome := LockoutOutcome{FailedAttempts: user.FailedLoginAttempts}

	if user.LockoutUntil == nil && user.FailedLoginAttempts >= p.maxAttempts {
		until := now.Add(p.duration)
		user.LockoutUntil = &until
		outcome.Locked = true
		outcome.Until = until
	}

	if err := p.users.Save(ctx, *user); err != nil {
		return LockoutOutcome{}, persistenceError("save lockout counters", err)
	}

	if outcome.Locked {
		p.logger.Warn("account locked",
			zap.String("username", appLogger.MaskUsername(username)),
			zap.Int("failed_attempts", outcome.FailedAttempts),
			zap.Time("locked_until", outcome.Until),
		)
	}
	return outcome, nil
}

func (p *LockoutPolicy) registerPhantomFailure(username string, now time.Time) LockoutOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.phantom[username]
	if !ok {
		rec = &phantomRecord{}
		p.phantom[username] = rec
	}
	if !rec.lockedUntil.IsZero() && !now.Before(rec.lockedUntil) {
		rec.failed = 0
		rec.lockedUntil = time.Time{}
	}

	rec.failed++
	rec.lastAttempt = now
	outcome := LockoutOutcome{FailedAttempts: rec.failed}
	if rec.lockedUntil.IsZero() && rec.failed >= p.maxAttempts {
		rec.lockedUntil = now.Add(p.duration)
		outcome.Locked = true
		outcome.Until = rec.lockedUntil
	}
	return outcome
}

// RecordSuccess clears failure tracking for username and stamps the login time.
// It returns the persisted record, or ErrAccountLocked when a lock was stamped after the caller's check.
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, username string, loginAt time.Time) (*domain.User, error) {
	user, err := p.Update(ctx, username, func(user *domain.User) error {
		user.ClearLockout()
		stamp := loginAt.UTC()
		user.LastLogin = &stamp
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, persistenceError("load user for login", err)
	}
	return user, err
}

// Update applies mutate to a fresh read of username's record and saves it, serialized with every
// other counter update for that username. A record that is locked when read is rejected with
// ErrAccountLocked before mutate runs. A missing record yields repository.ErrNotFound.
func (p *LockoutPolicy) Update(ctx context.Context, username string, mutate func(*domain.User) error) (*domain.User, error) {
	unlock := p.lockUsername(username)
	defer unlock()

	user, err := p.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, persistenceError("load user", err)
	}
	if user.IsLockedAt(p.now()) {
		return nil, ErrAccountLocked
	}

	if err := mutate(user); err != nil {
		return nil, err
	}
	if err := p.users.Save(ctx, *user); err != nil {
		return nil, persistenceError("save user", err)
	}
	return user, nil
}

// PruneExpired drops in-memory records for unknown usernames that are neither locked nor recently used.
func (p *LockoutPolicy) PruneExpired() int {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for name, rec := range p.phantom {
		if now.Before(rec.lockedUntil) {
			continue
		}
		if now.Sub(rec.lastAttempt) < p.duration {
			continue
		}
		delete(p.phantom, name)
		removed++
	}
	return removed
}

func (p *LockoutPolicy) lockUsername(username string) func() {
	p.mu.Lock()
	l, ok := p.locks[username]
	if !ok {
		l = &usernameLock{}
		p.locks[username] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, username)
		}
		p.mu.Unlock()
	}
}
