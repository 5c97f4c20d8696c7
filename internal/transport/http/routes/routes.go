package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/infra/config"
	"github.com/azniosman/vms/internal/transport/http/handlers"
	"github.com/azniosman/vms/internal/transport/http/middleware"
	"github.com/azniosman/vms/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.Authenticator
	Users        *usecase.UserService
	Allowlist    *usecase.IPAllowlist
	SecureValues *usecase.SecureValues
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ClientIP feeds the allowlist, the login rate limit and audit events, so forwarded
	// headers are honoured only from configured proxies.
	if err := r.SetTrustedProxies(trustedProxies(deps.Config)); err != nil {
		if deps.Logger != nil {
			deps.Logger.Error("invalid trusted proxies, ignoring forwarded headers", zap.Error(err))
		}
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Services.Auth == nil {
		return r
	}

	api := r.Group("/v1")
	{
		requireSession := middleware.RequireSession(deps.Services.Auth)

		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Config.Security.Session.Timeout)
		authHandler.RegisterRoutes(authGroup, requireSession, buildLoginMiddlewares(deps)...)

		if deps.Services.Users != nil {
			userHandler := handlers.NewUserHandler(deps.Services.Users)
			authGroup.POST("/password", requireSession, userHandler.ChangePassword)

			usersGroup := api.Group("/users")
			usersGroup.Use(requireSession, middleware.RequirePermission(domain.ResourceUser, domain.ActionCreate))
			usersGroup.POST("", userHandler.CreateUser)
		}

		adminGroup := api.Group("/admin")
		adminGroup.Use(requireSession, middleware.RequireRole(domain.RoleSuperAdmin))
		handlers.NewAdminHandler(deps.Services.Allowlist, deps.Services.SecureValues).RegisterRoutes(adminGroup)
	}

	return r
}

func trustedProxies(cfg *config.AppConfig) []string {
	if len(cfg.App.TrustedProxies) == 0 {
		return nil
	}
	return cfg.App.TrustedProxies
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
