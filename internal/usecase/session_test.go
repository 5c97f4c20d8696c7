package usecase

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/infra/telemetry"
)

func newTestRegistry(t *testing.T, clock *testClock) *SessionRegistry {
	t.Helper()
	return NewSessionRegistry(security.NewKeyMaterial(), zaptest.NewLogger(t)).
		WithClock(clock.Now).
		WithTimeout(30 * time.Minute)
}

func TestSessionRegistryCreateAndValidate(t *testing.T) {
	clock := newTestClock()
	registry := newTestRegistry(t, clock)

	id, err := registry.Create("u1", "alice", domain.RoleReceptionist, "10.0.0.1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	clock.Advance(10 * time.Minute)
	if !registry.Validate(id) {
		t.Fatal("expected session to be valid")
	}
	sess, ok := registry.Get(id)
	if !ok {
		t.Fatal("expected session lookup to succeed")
	}
	if !sess.LastActivity.Equal(clock.Now()) {
		t.Fatalf("validate did not refresh activity: %v", sess.LastActivity)
	}
	if sess.IPAddress != "10.0.0.1" || sess.UserID != "u1" || sess.Role != domain.RoleReceptionist {
		t.Fatalf("unexpected session %+v", sess)
	}

	role, err := registry.Role(id)
	if err != nil || role != domain.RoleReceptionist {
		t.Fatalf("Role = %v, %v", role, err)
	}
}

func TestSessionRegistryValidateEvictsExpired(t *testing.T) {
	clock := newTestClock()
	registry := newTestRegistry(t, clock)

	var expired []domain.UserSession
	registry.OnExpired(func(s []domain.UserSession) { expired = append(expired, s...) })

	id, _ := registry.Create("u1", "alice", domain.RoleSecurityGuard, "")
	clock.Advance(30*time.Minute + time.Second)

	if registry.Validate(id) {
		t.Fatal("expected expired session to be invalid")
	}
	if registry.Count() != 0 {
		t.Fatal("expired session was not evicted")
	}
	if len(expired) != 1 || expired[0].ID != id {
		t.Fatalf("expiry hook not invoked: %+v", expired)
	}
	if _, err := registry.Role(id); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessionRegistryTouchExtendsLifetime(t *testing.T) {
	clock := newTestClock()
	registry := newTestRegistry(t, clock)

	id, _ := registry.Create("u1", "alice", domain.RoleAdministrator, "")
	clock.Advance(20 * time.Minute)
	registry.Touch(id)
	clock.Advance(20 * time.Minute)

	if !registry.Validate(id) {
		t.Fatal("touched session expired early")
	}
}

func TestSessionRegistryDestroy(t *testing.T) {
	clock := newTestClock()
	registry := newTestRegistry(t, clock)

	id, _ := registry.Create("u1", "alice", domain.RoleAdministrator, "")
	if !registry.Destroy(id) {
		t.Fatal("expected destroy to report existing session")
	}
	if registry.Destroy(id) {
		t.Fatal("second destroy reported success")
	}
	if registry.Validate(id) {
		t.Fatal("destroyed session still valid")
	}
}

func TestSessionRegistrySweepExpired(t *testing.T) {
	clock := newTestClock()
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewSecurityMetrics(reg)
	if err != nil {
		t.Fatalf("NewSecurityMetrics: %v", err)
	}
	registry := newTestRegistry(t, clock).WithMetrics(metrics)

	stale, _ := registry.Create("u1", "alice", domain.RoleAdministrator, "")
	clock.Advance(25 * time.Minute)
	fresh, _ := registry.Create("u2", "bob", domain.RoleReceptionist, "")
	clock.Advance(10 * time.Minute)

	if n := registry.SweepExpired(); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if _, ok := registry.Get(stale); ok {
		t.Fatal("stale session survived sweep")
	}
	if _, ok := registry.Get(fresh); !ok {
		t.Fatal("fresh session was swept")
	}
	if got := testutil.ToFloat64(metrics.ActiveSessions); got != 1 {
		t.Fatalf("expected active gauge 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.ExpiredSessions); got != 1 {
		t.Fatalf("expected expired counter 1, got %f", got)
	}
}

func TestSessionRegistryIDsForUser(t *testing.T) {
	registry := newTestRegistry(t, newTestClock())
	a, _ := registry.Create("u1", "alice", domain.RoleAdministrator, "")
	b, _ := registry.Create("u1", "alice", domain.RoleAdministrator, "")
	registry.Create("u2", "bob", domain.RoleReceptionist, "")

	ids := registry.IDsForUser("u1")
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %v", ids)
	}
	seen := map[string]bool{ids[0]: true, ids[1]: true}
	if !seen[a] || !seen[b] {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestSessionRegistryConcurrentAccess(t *testing.T) {
	registry := newTestRegistry(t, newTestClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := registry.Create("u", "user", domain.RoleSecurityGuard, "")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			registry.Validate(id)
			registry.Touch(id)
			registry.SweepExpired()
			registry.Destroy(id)
		}()
	}
	wg.Wait()

	if registry.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", registry.Count())
	}
}

func TestSessionRegistryRejectsEmptyID(t *testing.T) {
	registry := newTestRegistry(t, newTestClock())
	if registry.Validate("") {
		t.Fatal("empty id validated")
	}
}
