package usecase

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
)

// IPAllowlist restricts which client addresses may authenticate. An empty list allows everyone.
type IPAllowlist struct {
	store  port.IPAllowlistStore
	audit  port.SecurityAuditor
	logger *zap.Logger
	now    func() time.Time
}

// NewIPAllowlist constructs the allowlist service. audit may be nil.
func NewIPAllowlist(store port.IPAllowlistStore, audit port.SecurityAuditor, logger *zap.Logger) *IPAllowlist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPAllowlist{store: store, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Seed adds every address in ips, skipping blanks.
func (l *IPAllowlist) Seed(ctx context.Context, ips []string) error {
	for _, ip := range ips {
		if strings.TrimSpace(ip) == "" {
			continue
		}
		normalized, err := normalizeIP(ip)
		if err != nil {
			return err
		}
		if err := l.store.Add(ctx, normalized); err != nil {
			return persistenceError("seed allowlist", err)
		}
	}
	return nil
}

// Add allows ip. actorID identifies the operator making the change.
func (l *IPAllowlist) Add(ctx context.Context, ip, actorID string) error {
	normalized, err := normalizeIP(ip)
	if err != nil {
		return err
	}
	if err := l.store.Add(ctx, normalized); err != nil {
		return persistenceError("add allowlist entry", err)
	}
	l.record(ctx, "added "+normalized, actorID)
	return nil
}

// Remove drops ip and reports whether it was present.
func (l *IPAllowlist) Remove(ctx context.Context, ip, actorID string) (bool, error) {
	normalized, err := normalizeIP(ip)
	if err != nil {
		return false, err
	}
	removed, err := l.store.Remove(ctx, normalized)
	if err != nil {
		return false, persistenceError("remove allowlist entry", err)
	}
	if removed {
		l.record(ctx, "removed "+normalized, actorID)
	}
	return removed, nil
}

// IsAllowed reports whether ip may authenticate.
func (l *IPAllowlist) IsAllowed(ctx context.Context, ip string) (bool, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return false, persistenceError("list allowlist", err)
	}
	if len(entries) == 0 {
		return true, nil
	}
	normalized, err := normalizeIP(ip)
	if err != nil {
		return false, nil
	}
	ok, err := l.store.Contains(ctx, normalized)
	if err != nil {
		return false, persistenceError("check allowlist", err)
	}
	return ok, nil
}

// List returns the allowed addresses.
func (l *IPAllowlist) List(ctx context.Context) ([]string, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return nil, persistenceError("list allowlist", err)
	}
	return entries, nil
}

func (l *IPAllowlist) record(ctx context.Context, details, actorID string) {
	l.logger.Info("ip allowlist changed", zap.String("change", details))
	if l.audit != nil {
		l.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventAllowlistChanged, details, l.now(), actorID, ""))
	}
}

func normalizeIP(ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	return parsed.String(), nil
}
