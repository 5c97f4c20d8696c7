package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/repository"
)

func TestUserStoreRenameDropsOldIndex(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(domain.User{ID: "u1", Username: "alice"})

	require.NoError(t, store.Save(ctx, domain.User{ID: "u1", Username: "alice2"}))

	_, err := store.FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := store.FindByUsername(ctx, "alice2")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestUserStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(domain.User{ID: "u1", Username: "alice"})

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	got.FailedLoginAttempts = 9

	again, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, again.FailedLoginAttempts)
}

func TestSecurityEventStoreIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewSecurityEventStore()

	event := domain.SecurityEvent{ID: "e1", Type: domain.EventLogout}
	require.NoError(t, store.RecordSecurityEvent(ctx, event))
	require.NoError(t, store.RecordSecurityEvent(ctx, event))
	require.NoError(t, store.RecordSecurityEvent(ctx, domain.SecurityEvent{ID: "e2", Type: domain.EventAuthFailed}))

	assert.Len(t, store.Events(), 2)
	assert.Len(t, store.OfType(domain.EventLogout), 1)
}

func TestSettingsAndAllowlist(t *testing.T) {
	ctx := context.Background()

	settings := NewSettingsStore()
	_, err := settings.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, settings.PutSetting(ctx, "smtp_password", "blob"))
	value, err := settings.GetSetting(ctx, "smtp_password")
	require.NoError(t, err)
	assert.Equal(t, "blob", value)

	allow := NewIPAllowlistStore()
	require.NoError(t, allow.Add(ctx, "10.0.0.2"))
	require.NoError(t, allow.Add(ctx, "10.0.0.1"))
	list, err := allow.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, list)

	removed, err := allow.Remove(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, removed)
}
