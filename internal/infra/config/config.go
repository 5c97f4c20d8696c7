package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Security  SecuritySettings  `mapstructure:"security"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// TrustedProxies lists the addresses or CIDRs allowed to set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	RunMigrations     bool          `mapstructure:"run_migrations"`
}

// RedisSettings configures the optional Redis backend for login throttling and the IP allowlist.
type RedisSettings struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
	AllowlistKey    string `mapstructure:"allowlist_key"`
}

// KafkaSettings configures the security event stream.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures per-IP login throttling in front of the lockout policy.
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// SecuritySettings holds every tunable of the credential and session core.
type SecuritySettings struct {
	PBKDF2         PBKDF2Settings         `mapstructure:"pbkdf2"`
	Lockout        LockoutSettings        `mapstructure:"lockout"`
	Session        SessionSettings        `mapstructure:"session"`
	Cipher         CipherSettings         `mapstructure:"cipher"`
	KeyStore       string                 `mapstructure:"key_store"`
	KeyFile        string                 `mapstructure:"key_file"`
	Entropy        EntropySettings        `mapstructure:"entropy"`
	Password       PasswordSettings       `mapstructure:"password"`
	Audit          AuditSettings          `mapstructure:"audit"`
	Allowlist      AllowlistSettings      `mapstructure:"allowlist"`
	BootstrapAdmin BootstrapAdminSettings `mapstructure:"bootstrap_admin"`
}

type PBKDF2Settings struct {
	Iterations int `mapstructure:"iterations"`
	KeyLength  int `mapstructure:"key_length"`
	SaltLength int `mapstructure:"salt_length"`
}

type LockoutSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

type SessionSettings struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type CipherSettings struct {
	Mode string `mapstructure:"mode"`
}

type EntropySettings struct {
	AllowFallback bool `mapstructure:"allow_fallback"`
}

type PasswordSettings struct {
	MinLength int `mapstructure:"min_length"`
}

type AuditSettings struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type AllowlistSettings struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
}

type BootstrapAdminSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ErrInvalidConfig wraps every range violation reported by Validate.
var ErrInvalidConfig = errors.New("config: invalid value")

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VMS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.trusted_proxies",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.run_migrations",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"redis.allowlist_key",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.cleanup_interval",
		"security.pbkdf2.iterations",
		"security.pbkdf2.key_length",
		"security.pbkdf2.salt_length",
		"security.lockout.max_attempts",
		"security.lockout.duration",
		"security.session.timeout",
		"security.session.sweep_interval",
		"security.cipher.mode",
		"security.key_store",
		"security.key_file",
		"security.entropy.allow_fallback",
		"security.password.min_length",
		"security.audit.max_retries",
		"security.audit.retry_backoff",
		"security.allowlist.enabled",
		"security.allowlist.addresses",
		"security.bootstrap_admin.username",
		"security.bootstrap_admin.password",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated env values arrive as a single element.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Security.Allowlist.Addresses = splitList(cfg.Security.Allowlist.Addresses)
	cfg.App.TrustedProxies = splitList(cfg.App.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the accepted ranges for security parameters.
func (c *AppConfig) Validate() error {
	for _, proxy := range c.App.TrustedProxies {
		if !validAddressOrCIDR(proxy) {
			return fmt.Errorf("%w: app.trusted_proxies entry %q is not an address or CIDR", ErrInvalidConfig, proxy)
		}
	}

	s := c.Security
	switch {
	case s.Lockout.MaxAttempts < 1 || s.Lockout.MaxAttempts > 100:
		return fmt.Errorf("%w: security.lockout.max_attempts must be within 1..100", ErrInvalidConfig)
	case s.Lockout.Duration < time.Minute || s.Lockout.Duration > 24*time.Hour:
		return fmt.Errorf("%w: security.lockout.duration must be within 1m..24h", ErrInvalidConfig)
	case s.Session.Timeout < time.Minute || s.Session.Timeout > 24*time.Hour:
		return fmt.Errorf("%w: security.session.timeout must be within 1m..24h", ErrInvalidConfig)
	case s.Session.SweepInterval <= 0:
		return fmt.Errorf("%w: security.session.sweep_interval must be positive", ErrInvalidConfig)
	case s.PBKDF2.Iterations < 10000:
		return fmt.Errorf("%w: security.pbkdf2.iterations must be at least 10000", ErrInvalidConfig)
	case s.Password.MinLength < 8 || s.Password.MinLength > 128:
		return fmt.Errorf("%w: security.password.min_length must be within 8..128", ErrInvalidConfig)
	case s.Audit.MaxRetries < 0:
		return fmt.Errorf("%w: security.audit.max_retries must not be negative", ErrInvalidConfig)
	case s.KeyStore != "file" && s.KeyStore != "postgres":
		return fmt.Errorf("%w: security.key_store must be file or postgres", ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vms-security")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.trusted_proxies", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "vms")
	v.SetDefault("postgres.password", "vms_password")
	v.SetDefault("postgres.database", "vms")
	v.SetDefault("postgres.schema", "vms")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.run_migrations", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "vms:login_rate")
	v.SetDefault("redis.allowlist_key", "vms:ip_allowlist")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "vms")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "vms-security")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 20)
	v.SetDefault("rate_limit.cleanup_interval", "5m")

	v.SetDefault("security.pbkdf2.iterations", 100000)
	v.SetDefault("security.pbkdf2.key_length", 32)
	v.SetDefault("security.pbkdf2.salt_length", 16)
	v.SetDefault("security.lockout.max_attempts", 3)
	v.SetDefault("security.lockout.duration", "15m")
	v.SetDefault("security.session.timeout", "30m")
	v.SetDefault("security.session.sweep_interval", "60s")
	v.SetDefault("security.cipher.mode", "gcm")
	v.SetDefault("security.key_store", "file")
	v.SetDefault("security.key_file", "./secrets/config.key")
	v.SetDefault("security.entropy.allow_fallback", false)
	v.SetDefault("security.password.min_length", 12)
	v.SetDefault("security.audit.max_retries", 3)
	v.SetDefault("security.audit.retry_backoff", "100ms")
	v.SetDefault("security.allowlist.enabled", false)
	v.SetDefault("security.allowlist.addresses", []string{})
	v.SetDefault("security.bootstrap_admin.username", "")
	v.SetDefault("security.bootstrap_admin.password", "")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "VMS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func validAddressOrCIDR(value string) bool {
	if net.ParseIP(value) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(value)
	return err == nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
