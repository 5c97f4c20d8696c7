package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	appLogger "github.com/azniosman/vms/internal/infra/logger"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/infra/telemetry"
	"github.com/azniosman/vms/internal/repository"
)

// Audit details for rejected logins. They are recorded, never returned to callers.
const (
	reasonLocked         = "locked"
	reasonUnknownUser    = "unknown user"
	reasonInactive       = "inactive"
	reasonBadPassword    = "invalid password"
	reasonIPNotAllowed   = "ip not allowed"
	reasonStoreFailure   = "user store unavailable"
	reasonCorruptHash    = "stored credential unreadable"
	reasonSessionFailure = "session creation failed"
)

// Authenticator orchestrates login, logout and permission checks over the lockout policy,
// password hasher, user store and session registry.
type Authenticator struct {
	users     port.UserStore
	hasher    port.PasswordHasher
	lockout   *LockoutPolicy
	sessions  port.SessionRegistry
	audit     port.SecurityAuditor
	allowlist *IPAllowlist
	logger    *zap.Logger
	metrics   *telemetry.SecurityMetrics
	tracer    trace.Tracer
	now       func() time.Time

	// decoy credential verified for unknown or inactive users so every rejected
	// password costs the same KDF work.
	decoyHash string
	decoySalt string
}

// NewAuthenticator constructs an Authenticator. It derives a decoy hash up front, so it can fail on entropy errors.
func NewAuthenticator(
	users port.UserStore,
	hasher port.PasswordHasher,
	lockout *LockoutPolicy,
	sessions port.SessionRegistry,
	audit port.SecurityAuditor,
	logger *zap.Logger,
) (*Authenticator, error) {
	if users == nil || hasher == nil || lockout == nil || sessions == nil || audit == nil {
		return nil, fmt.Errorf("authenticator: missing dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	decoyHash, decoySalt, err := hasher.Hash(uuid.NewString(), "")
	if err != nil {
		return nil, fmt.Errorf("authenticator: derive decoy credential: %w", err)
	}

	return &Authenticator{
		users:     users,
		hasher:    hasher,
		lockout:   lockout,
		sessions:  sessions,
		audit:     audit,
		logger:    logger,
		tracer:    noop.NewTracerProvider().Tracer(telemetry.InstrumentationName),
		now:       func() time.Time { return time.Now().UTC() },
		decoyHash: decoyHash,
		decoySalt: decoySalt,
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (a *Authenticator) WithClock(clock func() time.Time) *Authenticator {
	if clock != nil {
		a.now = clock
	}
	return a
}

// WithAllowlist rejects logins from addresses outside allowlist.
func (a *Authenticator) WithAllowlist(allowlist *IPAllowlist) *Authenticator {
	a.allowlist = allowlist
	return a
}

// WithMetrics records outcomes and KDF timings.
func (a *Authenticator) WithMetrics(metrics *telemetry.SecurityMetrics) *Authenticator {
	a.metrics = metrics
	return a
}

// WithTracer emits spans for login processing.
func (a *Authenticator) WithTracer(tracer trace.Tracer) *Authenticator {
	if tracer != nil {
		a.tracer = tracer
	}
	return a
}

// Authenticate verifies credentials and returns a new session id.
// Rejections are ErrInvalidCredentials or ErrAccountLocked; store outages surface as ErrPersistence.
func (a *Authenticator) Authenticate(ctx context.Context, username, password, ip string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "Authenticator.Authenticate")
	defer span.End()

	username = strings.TrimSpace(username)
	log := a.logger.With(
		zap.String("username", appLogger.MaskUsername(username)),
		zap.String("ip", appLogger.MaskIP(ip)),
	)

	if a.allowlist != nil {
		allowed, err := a.allowlist.IsAllowed(ctx, ip)
		if err != nil {
			log.Error("allowlist lookup failed, rejecting login", zap.Error(err))
		}
		if err != nil || !allowed {
			a.reject(ctx, span, "", ip, reasonIPNotAllowed, telemetry.OutcomeInvalidCredentials)
			return "", ErrInvalidCredentials
		}
	}

	var user *domain.User
	if username != "" {
		found, err := a.users.FindByUsername(ctx, username)
		switch {
		case err == nil:
			user = found
		case errors.Is(err, repository.ErrNotFound):
		default:
			log.Error("user lookup failed", zap.Error(err))
			a.reject(ctx, span, "", ip, reasonStoreFailure, telemetry.OutcomeError)
			return "", persistenceError("find user", err)
		}
	}

	if status := a.lockout.Status(username, user); status.Locked {
		a.reject(ctx, span, userIDOf(user), ip, reasonLocked, telemetry.OutcomeLocked)
		log.Info("login rejected while locked", zap.Time("locked_until", status.Until))
		return "", ErrAccountLocked
	}

	if user == nil || !user.IsActive {
		a.verify(ctx, password, a.decoyHash, a.decoySalt)
		reason := reasonUnknownUser
		if user != nil {
			reason = reasonInactive
		}
		return "", a.fail(ctx, span, log, username, userIDOf(user), ip, reason)
	}

	ok, err := a.verify(ctx, password, user.PasswordHash, user.Salt)
	if err != nil {
		log.Error("stored credential could not be verified", zap.Error(err))
		return "", a.fail(ctx, span, log, username, user.ID, ip, reasonCorruptHash)
	}
	if !ok {
		return "", a.fail(ctx, span, log, username, user.ID, ip, reasonBadPassword)
	}

	// A lock may have been stamped by concurrent failures while the KDF ran.
	updated, err := a.lockout.RecordSuccess(ctx, username, a.now())
	if errors.Is(err, ErrAccountLocked) {
		a.reject(ctx, span, user.ID, ip, reasonLocked, telemetry.OutcomeLocked)
		log.Info("login rejected, account locked during verification")
		return "", ErrAccountLocked
	}
	if err != nil {
		log.Error("persist login failed", zap.Error(err))
		a.reject(ctx, span, user.ID, ip, reasonStoreFailure, telemetry.OutcomeError)
		return "", err
	}

	sessionID, err := a.sessions.Create(updated.ID, updated.Username, updated.Role, ip)
	if err != nil {
		log.Error("session creation failed", zap.Error(err))
		a.reject(ctx, span, user.ID, ip, reasonSessionFailure, telemetry.OutcomeError)
		return "", err
	}

	a.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventAuthSuccess,
		"login succeeded", a.now(), updated.ID, ip))
	a.metrics.AuthAttempt(telemetry.OutcomeSuccess)
	span.SetAttributes(attribute.String("auth.outcome", telemetry.OutcomeSuccess))
	log.Info("login succeeded",
		zap.String("user_id", updated.ID),
		zap.String("session", security.Fingerprint(sessionID)),
	)
	return sessionID, nil
}

// fail records a credential failure against the lockout policy and returns the caller-facing error.
func (a *Authenticator) fail(ctx context.Context, span trace.Span, log *zap.Logger, username, userID, ip, reason string) error {
	a.reject(ctx, span, userID, ip, reason, telemetry.OutcomeInvalidCredentials)

	if username == "" {
		return ErrInvalidCredentials
	}

	outcome, err := a.lockout.RegisterFailure(ctx, username)
	if err != nil {
		log.Error("lockout counter update failed", zap.Error(err))
		return ErrInvalidCredentials
	}
	if outcome.Locked {
		a.metrics.Lockout()
		a.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventAccountLocked,
			fmt.Sprintf("locked after %d failed attempts until %s", outcome.FailedAttempts, outcome.Until.Format(time.RFC3339)),
			a.now(), userID, ip))
	}
	return ErrInvalidCredentials
}

func (a *Authenticator) reject(ctx context.Context, span trace.Span, userID, ip, reason, outcome string) {
	a.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventAuthFailed, reason, a.now(), userID, ip))
	a.metrics.AuthAttempt(outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == telemetry.OutcomeError {
		span.SetStatus(codes.Error, reason)
	}
}

func (a *Authenticator) verify(ctx context.Context, password, hash, salt string) (bool, error) {
	_, span := a.tracer.Start(ctx, "PasswordHasher.Verify")
	defer span.End()

	started := time.Now()
	ok, err := a.hasher.Verify(password, hash, salt)
	a.metrics.ObserveKDF(time.Since(started))
	return ok, err
}

// Logout destroys the session. It reports whether the session existed.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) bool {
	sess, _ := a.sessions.Get(sessionID)
	destroyed := a.sessions.Destroy(sessionID)

	details := "logout"
	if !destroyed {
		details = "logout for unknown or expired session"
	}
	a.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventLogout, details, a.now(), sess.UserID, sess.IPAddress))
	if destroyed {
		a.logger.Info("logout", zap.String("user_id", sess.UserID), zap.String("session", security.Fingerprint(sessionID)))
	}
	return destroyed
}

// ValidateSession reports whether the session is live and refreshes its activity.
func (a *Authenticator) ValidateSession(sessionID string) bool {
	return a.sessions.Validate(sessionID)
}

// Session returns the live session after refreshing its activity.
func (a *Authenticator) Session(sessionID string) (domain.UserSession, error) {
	if !a.sessions.Validate(sessionID) {
		return domain.UserSession{}, ErrInvalidSession
	}
	sess, ok := a.sessions.Get(sessionID)
	if !ok {
		return domain.UserSession{}, ErrInvalidSession
	}
	return sess, nil
}

// HasPermission evaluates the role table for the session. Invalid sessions are never allowed.
func (a *Authenticator) HasPermission(sessionID, resource, action string) bool {
	sess, err := a.Session(sessionID)
	if err != nil {
		return false
	}
	return RoleAllows(sess.Role, resource, action)
}

// UserRole returns the role snapshot of the session or ErrInvalidSession.
func (a *Authenticator) UserRole(sessionID string) (domain.Role, error) {
	return a.sessions.Role(sessionID)
}

// HashPassword derives a hash, generating a salt when salt is empty.
func (a *Authenticator) HashPassword(password, salt string) (string, string, error) {
	started := time.Now()
	hash, used, err := a.hasher.Hash(password, salt)
	a.metrics.ObserveKDF(time.Since(started))
	return hash, used, err
}

// VerifyPassword checks password against a stored hash and salt in constant time.
func (a *Authenticator) VerifyPassword(password, hash, salt string) bool {
	ok, err := a.verify(context.Background(), password, hash, salt)
	return err == nil && ok
}

func userIDOf(user *domain.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
