package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/repository/memory"
	"github.com/azniosman/vms/internal/transport/http/middleware"
	"github.com/azniosman/vms/internal/usecase"
)

const (
	adminPassword = "Vm5!Adm1n-Console"
	guardPassword = "Gu4rd#Night-Shift"
)

type harness struct {
	engine   *gin.Engine
	users    *memory.UserStore
	events   *memory.SecurityEventStore
	auth     *usecase.Authenticator
	sessions *usecase.SessionRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keys := security.NewKeyMaterial()
	cfg := security.DefaultPBKDF2Config()
	cfg.Iterations = 1000
	hasher, err := security.NewPBKDF2Hasher(cfg, keys)
	require.NoError(t, err)

	users := memory.NewUserStore(
		seededUser(t, hasher, "u-admin", "root", adminPassword, domain.RoleSuperAdmin),
		seededUser(t, hasher, "u-guard", "guard", guardPassword, domain.RoleSecurityGuard),
	)
	events := memory.NewSecurityEventStore()
	audit := usecase.NewAuditTrail(events, nil, nil)
	lockout := usecase.NewLockoutPolicy(users)
	sessions := usecase.NewSessionRegistry(keys, nil)

	auth, err := usecase.NewAuthenticator(users, hasher, lockout, sessions, audit, nil)
	require.NoError(t, err)

	userSvc := usecase.NewUserService(users, hasher, security.NewPasswordPolicy(12), lockout, sessions, audit, nil)
	allowlist := usecase.NewIPAllowlist(memory.NewIPAllowlistStore(), audit, nil)

	cipher := security.NewCipher(security.CipherModeGCM, keys)
	key, err := keys.Key()
	require.NoError(t, err)
	require.NoError(t, cipher.SetDefaultKey(key))
	secrets := usecase.NewSecureValues(memory.NewSettingsStore(), usecase.NewCryptoService(cipher, nil), audit)

	r := gin.New()
	r.Use(middleware.EnrichContext())
	requireSession := middleware.RequireSession(auth)

	v1 := r.Group("/v1")
	authGroup := v1.Group("/auth")
	NewAuthHandler(auth, 30*time.Minute).RegisterRoutes(authGroup, requireSession)

	userHandler := NewUserHandler(userSvc)
	authGroup.POST("/password", requireSession, userHandler.ChangePassword)
	v1.POST("/users", requireSession,
		middleware.RequirePermission(domain.ResourceUser, domain.ActionCreate), userHandler.CreateUser)

	admin := v1.Group("/admin", requireSession, middleware.RequireRole(domain.RoleSuperAdmin))
	NewAdminHandler(allowlist, secrets).RegisterRoutes(admin)

	return &harness{engine: r, users: users, events: events, auth: auth, sessions: sessions}
}

func seededUser(t *testing.T, hasher *security.PBKDF2Hasher, id, username, password string, role domain.Role) domain.User {
	t.Helper()
	hash, salt, err := hasher.Hash(password, "")
	require.NoError(t, err)
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

func (h *harness) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51000"
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func (h *harness) login(t *testing.T, username, password string) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/auth/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
