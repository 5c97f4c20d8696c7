package port

import "context"

// IPAllowlistStore holds the set of client addresses allowed to authenticate.
type IPAllowlistStore interface {
	Add(ctx context.Context, ip string) error
	Remove(ctx context.Context, ip string) (bool, error)
	Contains(ctx context.Context, ip string) (bool, error)
	List(ctx context.Context) ([]string, error)
}
