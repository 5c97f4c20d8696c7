package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/infra/security"
)

type userFixture struct {
	svc      *UserService
	store    *fakeUserStore
	hasher   *countingHasher
	audit    *recordingAuditor
	registry *SessionRegistry
	lockout  *LockoutPolicy
	clock    *testClock
}

func newUserFixture(t *testing.T, users ...domain.User) *userFixture {
	t.Helper()
	hasher := newTestHasher(t)
	return buildUserFixture(t, hasher, hasher, users...)
}

func buildUserFixture(t *testing.T, verifier port.PasswordHasher, hasher *countingHasher, users ...domain.User) *userFixture {
	t.Helper()
	clock := newTestClock()
	store := newFakeUserStore(users...)
	audit := &recordingAuditor{}
	logger := zaptest.NewLogger(t)

	lockout := NewLockoutPolicy(store, WithLockoutClock(clock.Now))
	registry := NewSessionRegistry(security.NewKeyMaterial(), logger).WithClock(clock.Now)
	svc := NewUserService(store, verifier, security.NewPasswordPolicy(12), lockout, registry, audit, logger).WithClock(clock.Now)

	return &userFixture{svc: svc, store: store, hasher: hasher, audit: audit, registry: registry, lockout: lockout, clock: clock}
}

func TestCreateUser(t *testing.T) {
	f := newUserFixture(t)

	user, err := f.svc.CreateUser(context.Background(), CreateUserInput{
		Username: "  frontdesk1 ",
		Password: "Sunrise#Harbor42",
		Role:     domain.RoleReceptionist,
	}, "admin-1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "frontdesk1" || user.PasswordHash != "" || user.Salt != "" {
		t.Fatalf("unexpected returned user %+v", user)
	}

	stored := f.store.get(user.ID)
	if stored.PasswordHash == "" || stored.Salt == "" || !stored.IsActive {
		t.Fatalf("stored user incomplete: %+v", stored)
	}
	if ok, err := f.hasher.Verify("Sunrise#Harbor42", stored.PasswordHash, stored.Salt); err != nil || !ok {
		t.Fatalf("stored hash does not verify: %v %v", ok, err)
	}

	created := f.audit.ofType(domain.EventUserCreated)
	if len(created) != 1 || created[0].UserID == nil || *created[0].UserID != "admin-1" {
		t.Fatalf("unexpected audit trail %+v", created)
	}
}

func TestCreateUserRejections(t *testing.T) {
	hasher := newTestHasher(t)
	existing := newTestUser(t, hasher, "u-1", "taken", "Sunrise#Harbor42", domain.RoleReceptionist)
	f := newUserFixture(t, existing)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateUserInput
		check func(error) bool
	}{
		{
			name:  "duplicate username",
			input: CreateUserInput{Username: "taken", Password: "Sunrise#Harbor42", Role: domain.RoleReceptionist},
			check: func(err error) bool { return errors.Is(err, ErrUserExists) },
		},
		{
			name:  "invalid role",
			input: CreateUserInput{Username: "guard7", Password: "Sunrise#Harbor42", Role: domain.Role("Janitor")},
			check: func(err error) bool { return errors.Is(err, ErrInvalidRole) },
		},
		{
			name:  "username with space",
			input: CreateUserInput{Username: "john doe", Password: "Sunrise#Harbor42", Role: domain.RoleReceptionist},
			check: func(err error) bool { return errors.Is(err, ErrInvalidUsername) },
		},
		{
			name:  "weak password",
			input: CreateUserInput{Username: "guard7", Password: "short", Role: domain.RoleSecurityGuard},
			check: func(err error) bool {
				var pve *security.PasswordValidationError
				return errors.As(err, &pve)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateUser(ctx, tt.input, "admin-1"); !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}

	if n := len(f.audit.ofType(domain.EventUserCreated)); n != 0 {
		t.Fatalf("expected no USER_CREATED events, got %d", n)
	}
}

func TestChangePassword(t *testing.T) {
	hasher := newTestHasher(t)
	alice := newTestUser(t, hasher, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator)
	f := newUserFixture(t, alice)
	ctx := context.Background()

	current, err := f.registry.Create("u-alice", "alice", domain.RoleAdministrator, "10.0.0.1")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	other, _ := f.registry.Create("u-alice", "alice", domain.RoleAdministrator, "10.0.0.2")

	if err := f.svc.ChangePassword(ctx, current, "Sunrise#Harbor42", "Glacier!Meadow97", "10.0.0.1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	stored := f.store.get("u-alice")
	if stored.Salt == alice.Salt {
		t.Fatal("salt was not rotated")
	}
	if ok, _ := f.hasher.Verify("Glacier!Meadow97", stored.PasswordHash, stored.Salt); !ok {
		t.Fatal("new password does not verify")
	}
	if !f.registry.Validate(current) {
		t.Fatal("current session was ended")
	}
	if f.registry.Validate(other) {
		t.Fatal("other session survived a password change")
	}
	if n := len(f.audit.ofType(domain.EventPasswordChanged)); n != 1 {
		t.Fatalf("expected one PASSWORD_CHANGED event, got %d", n)
	}
}

func TestChangePasswordWrongCurrentCountsAsFailure(t *testing.T) {
	hasher := newTestHasher(t)
	alice := newTestUser(t, hasher, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator)
	f := newUserFixture(t, alice)

	sessionID, _ := f.registry.Create("u-alice", "alice", domain.RoleAdministrator, "")

	err := f.svc.ChangePassword(context.Background(), sessionID, "nope", "Glacier!Meadow97", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := f.store.get("u-alice").FailedLoginAttempts; got != 1 {
		t.Fatalf("expected failed attempt to be counted, got %d", got)
	}
	if n := len(f.audit.ofType(domain.EventAuthFailed)); n != 1 {
		t.Fatalf("expected AUTH_FAILED event, got %d", n)
	}
}

func TestChangePasswordRejectsReuseAndUnknownSession(t *testing.T) {
	hasher := newTestHasher(t)
	alice := newTestUser(t, hasher, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator)
	f := newUserFixture(t, alice)
	ctx := context.Background()

	if err := f.svc.ChangePassword(ctx, "missing", "a", "b", ""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	sessionID, _ := f.registry.Create("u-alice", "alice", domain.RoleAdministrator, "")
	err := f.svc.ChangePassword(ctx, sessionID, "Sunrise#Harbor42", "Sunrise#Harbor42", "")
	var pve *security.PasswordValidationError
	if !errors.As(err, &pve) || pve.Code != "different" {
		t.Fatalf("expected reuse rejection, got %v", err)
	}
}

func TestChangePasswordRejectedWhileLocked(t *testing.T) {
	hasher := newTestHasher(t)
	alice := newTestUser(t, hasher, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator)
	until := newTestClock().Now().Add(10 * time.Minute)
	alice.FailedLoginAttempts = 3
	alice.LockoutUntil = &until
	f := newUserFixture(t, alice)

	sessionID, _ := f.registry.Create("u-alice", "alice", domain.RoleAdministrator, "")
	err := f.svc.ChangePassword(context.Background(), sessionID, "Sunrise#Harbor42", "Glacier!Meadow97", "")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if n := f.hasher.verifyCount(); n != 0 {
		t.Fatalf("password hasher consulted while locked: %d calls", n)
	}
	if got := f.store.get("u-alice"); got.PasswordHash != alice.PasswordHash || got.FailedLoginAttempts != 3 {
		t.Fatalf("locked record modified: %+v", got)
	}
	if n := len(f.audit.ofType(domain.EventAuthFailed)); n != 1 {
		t.Fatalf("expected one AUTH_FAILED event, got %d", n)
	}
}

// startGatedChange runs ChangePassword in the background and returns once it is inside the KDF.
func startGatedChange(t *testing.T, f *userFixture, gated *gatedHasher, current, next string) <-chan error {
	t.Helper()
	sessionID, err := f.registry.Create("u-alice", "alice", domain.RoleAdministrator, "")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- f.svc.ChangePassword(context.Background(), sessionID, current, next, "")
	}()
	<-gated.entered
	return done
}

func TestChangePasswordKeepsFailuresCountedDuringVerification(t *testing.T) {
	base := newTestHasher(t)
	gated := newGatedHasher(base, "Sunrise#Harbor42")
	f := buildUserFixture(t, gated, base, newTestUser(t, base, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator))
	ctx := context.Background()

	done := startGatedChange(t, f, gated, "Sunrise#Harbor42", "Glacier!Meadow97")
	if _, err := f.lockout.RegisterFailure(ctx, "alice"); err != nil {
		t.Fatalf("RegisterFailure: %v", err)
	}
	close(gated.release)

	if err := <-done; err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	stored := f.store.get("u-alice")
	if stored.FailedLoginAttempts != 1 {
		t.Fatalf("failure recorded during verification was lost: %+v", stored)
	}
	if ok, _ := base.Verify("Glacier!Meadow97", stored.PasswordHash, stored.Salt); !ok {
		t.Fatal("new password not stored")
	}

	// A later failure reads the new credential and must not restore the old one.
	if _, err := f.lockout.RegisterFailure(ctx, "alice"); err != nil {
		t.Fatalf("RegisterFailure: %v", err)
	}
	if after := f.store.get("u-alice"); after.PasswordHash != stored.PasswordHash || after.Salt != stored.Salt {
		t.Fatal("failure update overwrote the changed password")
	}
}

func TestChangePasswordAbortsWhenLockedDuringVerification(t *testing.T) {
	base := newTestHasher(t)
	alice := newTestUser(t, base, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator)
	gated := newGatedHasher(base, "Sunrise#Harbor42")
	f := buildUserFixture(t, gated, base, alice)
	ctx := context.Background()

	done := startGatedChange(t, f, gated, "Sunrise#Harbor42", "Glacier!Meadow97")
	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		if _, err := f.lockout.RegisterFailure(ctx, "alice"); err != nil {
			t.Fatalf("RegisterFailure: %v", err)
		}
	}
	close(gated.release)

	if err := <-done; !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	stored := f.store.get("u-alice")
	if stored.PasswordHash != alice.PasswordHash || stored.LockoutUntil == nil {
		t.Fatalf("password changed on a locked account: %+v", stored)
	}
	if n := len(f.audit.ofType(domain.EventPasswordChanged)); n != 0 {
		t.Fatalf("expected no PASSWORD_CHANGED event, got %d", n)
	}
}

func TestChangePasswordDoesNotOverwriteConcurrentChange(t *testing.T) {
	base := newTestHasher(t)
	gated := newGatedHasher(base, "Sunrise#Harbor42")
	f := buildUserFixture(t, gated, base, newTestUser(t, base, "u-alice", "alice", "Sunrise#Harbor42", domain.RoleAdministrator))

	done := startGatedChange(t, f, gated, "Sunrise#Harbor42", "Glacier!Meadow97")
	if _, err := f.lockout.Update(context.Background(), "alice", func(u *domain.User) error {
		u.PasswordHash = "replaced-hash"
		u.Salt = "replaced-salt"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	close(gated.release)

	if err := <-done; !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := f.store.get("u-alice"); got.PasswordHash != "replaced-hash" {
		t.Fatalf("concurrent credential overwritten: %q", got.PasswordHash)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	created, err := f.svc.BootstrapAdmin(ctx, "root", "Sunrise#Harbor42")
	if err != nil || !created {
		t.Fatalf("BootstrapAdmin = %v, %v", created, err)
	}
	again, err := f.svc.BootstrapAdmin(ctx, "root", "Sunrise#Harbor42")
	if err != nil || again {
		t.Fatalf("second BootstrapAdmin = %v, %v", again, err)
	}

	user, err := f.store.FindByUsername(ctx, "root")
	if err != nil || user.Role != domain.RoleSuperAdmin {
		t.Fatalf("bootstrap user = %+v, %v", user, err)
	}

	if created, err := f.svc.BootstrapAdmin(ctx, "", ""); err != nil || created {
		t.Fatalf("blank bootstrap = %v, %v", created, err)
	}
}
