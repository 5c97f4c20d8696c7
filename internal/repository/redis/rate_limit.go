package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azniosman/vms/internal/core/port"
)

var errWindow = errors.New("window must be positive")

// LoginThrottleRepository keeps per-client login attempt logs in sorted sets scored by
// unix nanoseconds, so every API replica shares one sliding window.
type LoginThrottleRepository struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewLoginThrottleRepository stores attempts under prefix. Keys expire ttl after the last write.
func NewLoginThrottleRepository(client redis.Cmdable, prefix string, ttl time.Duration) *LoginThrottleRepository {
	return &LoginThrottleRepository{client: client, prefix: prefix, ttl: ttl}
}

// RecordAttempt adds at to the log and refreshes the key expiry in one round trip.
func (r *LoginThrottleRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	nanos := at.UnixNano()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nanos), Member: strconv.FormatInt(nanos, 10)})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountAttempts counts attempts inside (reference-window, reference].
func (r *LoginThrottleRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errWindow
	}
	lo, hi := bounds(window, reference)
	count, err := r.client.ZCount(ctx, r.key(identifier), lo, hi).Result()
	if err != nil {
		return 0, fmt.Errorf("count login attempts: %w", err)
	}
	return int(count), nil
}

// TrimWindow drops attempts that fell out of the window.
func (r *LoginThrottleRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errWindow
	}
	lo, _ := bounds(window, reference)
	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", "("+lo).Err(); err != nil {
		return fmt.Errorf("trim login attempts: %w", err)
	}
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (r *LoginThrottleRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errWindow
	}
	lo, hi := bounds(window, reference)
	values, err := r.client.ZRangeByScore(ctx, r.key(identifier), &redis.ZRangeBy{Min: lo, Max: hi, Count: 1}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest login attempt: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}

func (r *LoginThrottleRepository) key(identifier string) string {
	if r.prefix == "" {
		return identifier
	}
	return r.prefix + ":" + identifier
}

func bounds(window time.Duration, reference time.Time) (string, string) {
	return strconv.FormatInt(reference.Add(-window).UnixNano(), 10),
		strconv.FormatInt(reference.UnixNano(), 10)
}

var _ port.RateLimitStore = (*LoginThrottleRepository)(nil)
