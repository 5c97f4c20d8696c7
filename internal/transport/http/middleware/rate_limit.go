package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/port"
	appLogger "github.com/azniosman/vms/internal/infra/logger"
)

const (
	rateLimitProblemType  = "about:blank#rate-limited"
	rateLimitProblemTitle = "Too Many Login Attempts"
)

// IdentifierFunc extracts the identifier used to scope rate limits, usually the client IP.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule allows Limit requests per Window for each identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter throttles requests ahead of the lockout policy. It uses the shared sliding-window
// store when one is configured and falls back to local token buckets otherwise, or while the store fails.
type RateLimiter struct {
	store     port.RateLimitStore
	local     *LocalLimiter
	logger    *zap.Logger
	now       func() time.Time
	throttled func(rule string)
}

// verdict is the outcome of one rule for one request.
type verdict struct {
	rule      string
	allowed   bool
	limit     int
	remaining int
	reset     time.Time
	wait      time.Duration
}

// ProblemDetails is the RFC 9457 body of a 429 response.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds the limiter. store may be nil.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		store:  store,
		local:  NewLocalLimiter(),
		logger: logger,
		now:    time.Now,
	}
}

// OnThrottle registers a callback invoked for every rejected request.
func (rl *RateLimiter) OnThrottle(fn func(rule string)) *RateLimiter {
	rl.throttled = fn
	return rl
}

// Local exposes the fallback buckets so they can be pruned periodically.
func (rl *RateLimiter) Local() *LocalLimiter {
	return rl.local
}

// WithClock overrides the clock of both the shared and the local path.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
		rl.local.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to gin's resolved client address.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a middleware enforcing every valid rule. The first rule that rejects ends the request.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}
	if len(active) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		now := rl.now()
		var reported *verdict

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			v := rl.check(c.Request.Context(), rule, identifier, now)
			if !v.allowed {
				if rl.throttled != nil {
					rl.throttled(rule.Name)
				}
				writeRateHeaders(c, v)
				rejectRateLimited(c, v)
				return
			}
			if reported == nil || v.remaining < reported.remaining {
				reported = &v
			}
		}

		if reported != nil {
			writeRateHeaders(c, *reported)
		}
		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, rule RateLimitRule, identifier string, now time.Time) verdict {
	key := rule.Name + ":" + identifier
	if rl.store != nil {
		v, err := rl.checkShared(ctx, rule, key, now)
		if err == nil {
			return v
		}
		rl.logger.Warn("shared rate limit check failed, using local buckets",
			zap.String("rule", rule.Name),
			zap.String("client_ip", appLogger.MaskIP(identifier)),
			zap.Error(err),
		)
	}

	allowed, remaining, wait := rl.local.Allow(key, rule.Limit, rule.Window)
	return verdict{
		rule:      rule.Name,
		allowed:   allowed,
		limit:     rule.Limit,
		remaining: remaining,
		reset:     now.Add(wait),
		wait:      wait,
	}
}

// checkShared evaluates the sliding window in the store and records the attempt when it is admitted.
func (rl *RateLimiter) checkShared(ctx context.Context, rule RateLimitRule, key string, now time.Time) (verdict, error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return verdict{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return verdict{}, err
	}

	v := verdict{rule: rule.Name, limit: rule.Limit, reset: now.Add(rule.Window)}
	if found {
		v.reset = oldest.Add(rule.Window)
	}
	v.wait = max(v.reset.Sub(now), 0)

	if count >= rule.Limit {
		return v, nil
	}
	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return verdict{}, err
	}
	v.allowed = true
	v.remaining = max(rule.Limit-count-1, 0)
	return v, nil
}

func writeRateHeaders(c *gin.Context, v verdict) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(v.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(v.remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))
	if !v.allowed {
		h.Set("Retry-After", strconv.Itoa(ceilSeconds(v.wait)))
	}
}

func rejectRateLimited(c *gin.Context, v verdict) {
	seconds := ceilSeconds(v.wait)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many login attempts from this address. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func ceilSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 0)
}
