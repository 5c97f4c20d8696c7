package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	appLogger "github.com/azniosman/vms/internal/infra/logger"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/repository"
)

const maxUsernameLength = 64

var errCredentialChanged = errors.New("credential changed during password change")

// CreateUserInput describes a new operator account.
type CreateUserInput struct {
	Username string
	Password string
	Role     domain.Role
}

// UserService provisions operator accounts and rotates their passwords.
type UserService struct {
	users    port.UserStore
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	lockout  *LockoutPolicy
	sessions *SessionRegistry
	audit    port.SecurityAuditor
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewUserService constructs a UserService.
func NewUserService(
	users port.UserStore,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	lockout *LockoutPolicy,
	sessions *SessionRegistry,
	audit port.SecurityAuditor,
	logger *zap.Logger,
) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockout == nil {
		lockout = NewLockoutPolicy(users)
	}
	return &UserService{
		users:    users,
		hasher:   hasher,
		policy:   policy,
		lockout:  lockout,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *UserService) WithClock(clock func() time.Time) *UserService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateUser validates, hashes and stores a new account. actorID is recorded in the audit trail.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput, actorID string) (domain.User, error) {
	username := strings.TrimSpace(input.Username)
	if err := validateUsername(username); err != nil {
		return domain.User{}, err
	}
	if !input.Role.Valid() {
		return domain.User{}, fmt.Errorf("%w: %q", ErrInvalidRole, input.Role)
	}

	_, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return domain.User{}, ErrUserExists
	case !errors.Is(err, repository.ErrNotFound):
		return domain.User{}, persistenceError("check username", err)
	}

	if err := s.policy.Validate(input.Password, domain.PasswordContext{Username: username}); err != nil {
		return domain.User{}, err
	}

	hash, salt, err := s.hasher.Hash(input.Password, "")
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           s.newID(),
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
		Role:         input.Role,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := s.users.Save(ctx, user); err != nil {
		return domain.User{}, persistenceError("save user", err)
	}

	s.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventUserCreated,
		fmt.Sprintf("user %s created with role %s by %s", user.ID, user.Role, actorLabel(actorID)), s.now(), actorID, ""))
	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("username", appLogger.MaskUsername(username)),
		zap.String("role", string(user.Role)),
	)

	user.PasswordHash = ""
	user.Salt = ""
	return user, nil
}

// ChangePassword re-verifies the current password of the session owner and stores a freshly salted hash.
// A locked account is rejected before any hashing. Other sessions of the user are ended.
func (s *UserService) ChangePassword(ctx context.Context, sessionID, currentPassword, newPassword, ip string) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidSession
		}
		return persistenceError("load user", err)
	}

	if s.lockout.Status(user.Username, user).Locked {
		s.rejectPasswordChange(ctx, user.ID, ip, "password change: account locked")
		return ErrAccountLocked
	}

	ok, err = s.hasher.Verify(currentPassword, user.PasswordHash, user.Salt)
	if err != nil || !ok {
		s.rejectPasswordChange(ctx, user.ID, ip, "password change: current password rejected")
		if _, lockErr := s.lockout.RegisterFailure(ctx, user.Username); lockErr != nil {
			s.logger.Error("lockout counter update failed", zap.Error(lockErr))
		}
		return ErrInvalidCredentials
	}

	validator := security.NewPasswordValidator(
		security.RequireDifferentFrom(currentPassword),
		security.PasswordRuleFunc(func(pw string) error {
			return s.policy.Validate(pw, domain.PasswordContext{Username: user.Username})
		}),
	)
	if err := validator.Validate(newPassword); err != nil {
		return err
	}

	hash, salt, err := s.hasher.Hash(newPassword, "")
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// The record is re-read under the username lock so counters written while the KDF ran survive,
	// and a credential replaced in the meantime is not overwritten.
	verifiedHash := user.PasswordHash
	updated, err := s.lockout.Update(ctx, user.Username, func(current *domain.User) error {
		if current.ID != user.ID || current.PasswordHash != verifiedHash {
			return errCredentialChanged
		}
		current.PasswordHash = hash
		current.Salt = salt
		return nil
	})
	switch {
	case errors.Is(err, ErrAccountLocked):
		s.rejectPasswordChange(ctx, user.ID, ip, "password change: account locked")
		return ErrAccountLocked
	case errors.Is(err, errCredentialChanged):
		s.rejectPasswordChange(ctx, user.ID, ip, "password change: credential changed concurrently")
		return ErrInvalidCredentials
	case errors.Is(err, repository.ErrNotFound):
		return ErrInvalidSession
	case err != nil:
		return err
	}

	ended := 0
	for _, other := range s.sessions.IDsForUser(updated.ID) {
		if other != sessionID && s.sessions.Destroy(other) {
			ended++
		}
	}

	s.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventPasswordChanged,
		fmt.Sprintf("password changed, %d other sessions ended", ended), s.now(), updated.ID, ip))
	return nil
}

func (s *UserService) rejectPasswordChange(ctx context.Context, userID, ip, details string) {
	s.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventAuthFailed, details, s.now(), userID, ip))
}

// BootstrapAdmin creates a SuperAdmin account when username does not exist yet.
// It reports whether an account was created.
func (s *UserService) BootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, nil
	}
	_, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, persistenceError("check bootstrap admin", err)
	}

	if _, err := s.CreateUser(ctx, CreateUserInput{
		Username: username,
		Password: password,
		Role:     domain.RoleSuperAdmin,
	}, "system"); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}

func validateUsername(username string) error {
	if username == "" || len(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidUsername
		}
	}
	return nil
}

func actorLabel(actorID string) string {
	if actorID == "" {
		return "unknown"
	}
	return actorID
}
