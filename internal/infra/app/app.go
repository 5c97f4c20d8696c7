package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/infra/config"
	"github.com/azniosman/vms/internal/infra/database"
	kafkainfra "github.com/azniosman/vms/internal/infra/kafka"
	"github.com/azniosman/vms/internal/infra/logger"
	redisinfra "github.com/azniosman/vms/internal/infra/redis"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/infra/telemetry"
	filerepo "github.com/azniosman/vms/internal/repository/file"
	postgresrepo "github.com/azniosman/vms/internal/repository/postgres"
	redisrepo "github.com/azniosman/vms/internal/repository/redis"
	"github.com/azniosman/vms/internal/transport/http/middleware"
	"github.com/azniosman/vms/internal/transport/http/routes"
	"github.com/azniosman/vms/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracing  *telemetry.TracerProvider
	sweeper  *usecase.Sweeper
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracing, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracing = tracing

	metrics, err := telemetry.NewSecurityMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init security metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if cfg.Postgres.RunMigrations {
		if err := database.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	repos := postgresrepo.NewRepositories(pool)

	// Shared login throttling and the allowlist move to redis when it is enabled.
	var (
		throttle       port.RateLimitStore
		allowlistStore port.IPAllowlistStore = repos.Allowlist
		cache          routes.CacheChecker
	)
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		cache = client

		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		throttle = redisrepo.NewLoginThrottleRepository(client.Redis(), cfg.Redis.RateLimitPrefix, 2*window)
		allowlistStore = redisrepo.NewAllowlistRepository(client.Redis(), cfg.Redis.AllowlistKey)
	}

	var publisher port.SecurityEventPublisher = kafkainfra.NewStubPublisher(log)
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log, func(error) { metrics.PublishFailure() })
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		} else {
			a.producer = producer
			publisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
	}

	audit := usecase.NewAuditTrail(repos.Events, publisher, log).
		WithRetry(cfg.Security.Audit.MaxRetries, cfg.Security.Audit.RetryBackoff).
		WithMetrics(metrics)

	entropyMode := domain.EntropyPolicyStrict
	if cfg.Security.Entropy.AllowFallback {
		entropyMode = domain.EntropyPolicyDegraded
	}
	keys := security.NewKeyMaterial(
		security.WithEntropyPolicy(domain.NewEntropyPolicy(entropyMode)),
		security.WithKeyMaterialLogger(log),
		security.WithDegradedHook(func(cause error) {
			metrics.EntropyDegraded()
			audit.Record(context.Background(), domain.NewSecurityEvent("", domain.EventEntropyDegraded,
				"secure random source failed, fallback generator in use: "+cause.Error(), time.Now().UTC(), "", ""))
		}),
	)

	cipher, err := a.loadCipher(ctx, repos, keys, audit)
	if err != nil {
		return err
	}

	hasher, err := security.NewPBKDF2Hasher(security.PBKDF2Config{
		Iterations: cfg.Security.PBKDF2.Iterations,
		KeyLength:  cfg.Security.PBKDF2.KeyLength,
		SaltLength: cfg.Security.PBKDF2.SaltLength,
	}, keys)
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}

	lockout := usecase.NewLockoutPolicy(repos.Users,
		usecase.WithMaxAttempts(cfg.Security.Lockout.MaxAttempts),
		usecase.WithLockoutDuration(cfg.Security.Lockout.Duration),
		usecase.WithLockoutLogger(log),
	)

	sessions := usecase.NewSessionRegistry(keys, log).
		WithTimeout(cfg.Security.Session.Timeout).
		WithMetrics(metrics).
		OnExpired(func(expired []domain.UserSession) {
			for _, sess := range expired {
				audit.Record(context.Background(), domain.NewSecurityEvent("", domain.EventSessionExpired,
					"session expired after inactivity", time.Now().UTC(), sess.UserID, sess.IPAddress))
			}
		})

	auth, err := usecase.NewAuthenticator(repos.Users, hasher, lockout, sessions, audit, log)
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}
	auth.WithMetrics(metrics).WithTracer(tracing.Tracer())

	allowlist := usecase.NewIPAllowlist(allowlistStore, audit, log)
	if cfg.Security.Allowlist.Enabled {
		if err := allowlist.Seed(ctx, cfg.Security.Allowlist.Addresses); err != nil {
			return fmt.Errorf("seed ip allowlist: %w", err)
		}
		auth.WithAllowlist(allowlist)
	}

	users := usecase.NewUserService(repos.Users, hasher, security.NewPasswordPolicy(cfg.Security.Password.MinLength),
		lockout, sessions, audit, log)
	created, err := users.BootstrapAdmin(ctx, cfg.Security.BootstrapAdmin.Username, cfg.Security.BootstrapAdmin.Password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		log.Info("bootstrap admin created", zap.String("username", logger.MaskUsername(cfg.Security.BootstrapAdmin.Username)))
	}

	secureValues := usecase.NewSecureValues(repos.Settings, usecase.NewCryptoService(cipher, log).WithMetrics(metrics), audit)

	rateLimiter := middleware.NewRateLimiter(throttle, log).OnThrottle(func(string) { metrics.Throttled() })

	a.sweeper = usecase.NewSweeper(cfg.Security.Session.SweepInterval, log,
		usecase.SweepJob{Name: "sessions", Run: sessions.SweepExpired},
		usecase.SweepJob{Name: "lockouts", Run: lockout.PruneExpired},
		usecase.SweepJob{Name: "rate_limit_buckets", Run: func() int {
			return rateLimiter.Local().Prune(cfg.RateLimit.CleanupInterval)
		}},
	)

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       cache,
		Services: routes.ServiceSet{
			Auth:         auth,
			Users:        users,
			Allowlist:    allowlist,
			SecureValues: secureValues,
		},
	})

	audit.Record(ctx, domain.NewSecurityEvent("", domain.EventSystemInit,
		fmt.Sprintf("security core started: env=%s cipher=%s key_store=%s", cfg.App.Env, cipher.Mode(), cfg.Security.KeyStore),
		time.Now().UTC(), "", ""))
	return nil
}

// loadCipher ensures the process encryption key exists and installs it as the cipher default.
func (a *Application) loadCipher(ctx context.Context, repos *postgresrepo.Repositories, keys port.KeyMaterialProvider, audit port.SecurityAuditor) (*security.Cipher, error) {
	var store port.EncryptionKeyStore = filerepo.NewKeyStore(a.cfg.Security.KeyFile)
	if a.cfg.Security.KeyStore == "postgres" {
		store = repos.Settings
	}

	key, created, err := usecase.EnsureEncryptionKey(ctx, store, keys)
	if err != nil {
		return nil, fmt.Errorf("ensure encryption key: %w", err)
	}
	defer security.ZeroBytes(key)

	cipher := security.NewCipher(security.ParseCipherMode(a.cfg.Security.Cipher.Mode), keys)
	if err := cipher.SetDefaultKey(key); err != nil {
		return nil, fmt.Errorf("install encryption key: %w", err)
	}

	if created {
		audit.Record(ctx, domain.NewSecurityEvent("", domain.EventEncryptionKeyReady,
			"new encryption key generated in "+a.cfg.Security.KeyStore+" store", time.Now().UTC(), "", ""))
		a.logger.Info("encryption key generated", zap.String("store", a.cfg.Security.KeyStore))
	}
	return cipher, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(sweepCtx)
	}()
	defer func() {
		stopSweeper()
		wg.Wait()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting VMS security API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// close releases everything build acquired, in reverse order. It tolerates a partial build.
func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracing.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
		cancel()
	}
	_ = a.logger.Sync()
}
