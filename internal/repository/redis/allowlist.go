package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/azniosman/vms/internal/core/port"
)

// AllowlistRepository keeps the login IP allowlist in a redis set shared by all replicas.
type AllowlistRepository struct {
	client redis.Cmdable
	key    string
}

func NewAllowlistRepository(client redis.Cmdable, key string) *AllowlistRepository {
	if key == "" {
		key = "vms:ip_allowlist"
	}
	return &AllowlistRepository{client: client, key: key}
}

func (r *AllowlistRepository) Add(ctx context.Context, ip string) error {
	if err := r.client.SAdd(ctx, r.key, ip).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (r *AllowlistRepository) Remove(ctx context.Context, ip string) (bool, error) {
	n, err := r.client.SRem(ctx, r.key, ip).Result()
	if err != nil {
		return false, fmt.Errorf("redis srem: %w", err)
	}
	return n > 0, nil
}

func (r *AllowlistRepository) Contains(ctx context.Context, ip string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, ip).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

func (r *AllowlistRepository) List(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

var _ port.IPAllowlistStore = (*AllowlistRepository)(nil)
