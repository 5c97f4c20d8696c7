package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/infra/config"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/repository/memory"
	"github.com/azniosman/vms/internal/transport/http/middleware"
	httproutes "github.com/azniosman/vms/internal/transport/http/routes"
	"github.com/azniosman/vms/internal/usecase"
)

type failingDB struct{}

func (failingDB) Ping(context.Context) error { return errors.New("connection refused") }

type healthyCache struct{}

func (healthyCache) HealthCheck(context.Context) error { return nil }

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}
	cfg.RateLimit.LoginMaxAttempts = 2
	cfg.RateLimit.WindowDuration = time.Minute
	cfg.Security.Session.Timeout = 30 * time.Minute
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config:   testConfig(),
		Logger:   zap.NewNop(),
		Database: failingDB{},
		Cache:    healthyCache{},
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("expected database error in body, got %s", w.Body.String())
	}
}

func TestLoginIsRateLimitedPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	keys := security.NewKeyMaterial()
	pbkdf2 := security.DefaultPBKDF2Config()
	pbkdf2.Iterations = 1000
	hasher, err := security.NewPBKDF2Hasher(pbkdf2, keys)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	users := memory.NewUserStore()
	audit := usecase.NewAuditTrail(memory.NewSecurityEventStore(), nil, nil)
	auth, err := usecase.NewAuthenticator(users, hasher, usecase.NewLockoutPolicy(users),
		usecase.NewSessionRegistry(keys, nil), audit, nil)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:      testConfig(),
		Logger:      zap.NewNop(),
		RateLimiter: middleware.NewRateLimiter(nil, zap.NewNop()),
		HTTPMetrics: metrics,
		Services:    httproutes.ServiceSet{Auth: auth},
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/v1/auth/login",
			strings.NewReader(`{"username":"nobody","password":"irrelevant"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.10:40000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized {
		t.Fatalf("expected first two attempts to reach the authenticator, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be throttled, got %v", codes)
	}
}

func TestSessionRoutesRequireBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	keys := security.NewKeyMaterial()
	hasher, err := security.NewPBKDF2Hasher(security.DefaultPBKDF2Config(), keys)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	users := memory.NewUserStore()
	auth, err := usecase.NewAuthenticator(users, hasher, usecase.NewLockoutPolicy(users),
		usecase.NewSessionRegistry(keys, nil), usecase.NewAuditTrail(nil, nil, nil), nil)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:   testConfig(),
		Logger:   zap.NewNop(),
		Services: httproutes.ServiceSet{Auth: auth},
	})

	for _, path := range []string{"/v1/auth/session", "/v1/auth/permissions?resource=visitor&action=view"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestForwardedForHonouredOnlyFromTrustedProxies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	keys := security.NewKeyMaterial()
	pbkdf2 := security.DefaultPBKDF2Config()
	pbkdf2.Iterations = 1000
	hasher, err := security.NewPBKDF2Hasher(pbkdf2, keys)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, salt, err := hasher.Hash("Gu4rd#Night-Shift", "")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := memory.NewUserStore(domain.User{
		ID: "u-guard", Username: "guard", PasswordHash: hash, Salt: salt,
		Role: domain.RoleSecurityGuard, IsActive: true,
	})

	events := memory.NewSecurityEventStore()
	audit := usecase.NewAuditTrail(events, nil, nil)
	allowlist := usecase.NewIPAllowlist(memory.NewIPAllowlistStore(), audit, nil)
	if err := allowlist.Seed(ctx, []string{"198.51.100.7"}); err != nil {
		t.Fatalf("seed allowlist: %v", err)
	}
	auth, err := usecase.NewAuthenticator(users, hasher, usecase.NewLockoutPolicy(users),
		usecase.NewSessionRegistry(keys, nil), audit, nil)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	auth.WithAllowlist(allowlist)

	login := func(cfg *config.AppConfig) int {
		r := httproutes.Register(httproutes.Dependencies{
			Config:   cfg,
			Logger:   zap.NewNop(),
			Services: httproutes.ServiceSet{Auth: auth},
		})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/v1/auth/login",
			strings.NewReader(`{"username":"guard","password":"Gu4rd#Night-Shift"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "198.51.100.7")
		req.Header.Set("X-Real-IP", "198.51.100.7")
		req.RemoteAddr = "203.0.113.50:51000"
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := login(testConfig()); code != http.StatusUnauthorized {
		t.Fatalf("spoofed X-Forwarded-For must not pass the allowlist, got %d", code)
	}
	failed := events.OfType(domain.EventAuthFailed)
	if len(failed) != 1 || failed[0].IPAddress == nil || *failed[0].IPAddress != "203.0.113.50" {
		t.Fatalf("expected the rejection to be attributed to the peer address, got %+v", failed)
	}

	proxied := testConfig()
	proxied.App.TrustedProxies = []string{"203.0.113.0/24"}
	if code := login(proxied); code != http.StatusOK {
		t.Fatalf("expected login through a trusted proxy to succeed, got %d", code)
	}
}
