package postgres

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/repository"
)

// EncryptionKeySetting is the settings row holding the base64 process key.
const EncryptionKeySetting = "encryption_key"

// SettingsRepository stores key/value settings. It also persists the encryption key
// when the key store is configured as "postgres".
type SettingsRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewSettingsRepository(exec pgExecutor) *SettingsRepository {
	return &SettingsRepository{exec: exec, builder: newBuilder()}
}

func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	stmt, args, err := r.builder.Select("value").
		From("settings").
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select setting sql: %w", err)
	}

	var value string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan setting: %w", err)
	}
	return value, nil
}

func (r *SettingsRepository) PutSetting(ctx context.Context, key, value string) error {
	stmt, args, err := r.builder.Insert("settings").
		Columns("key", "value", "updated_at").
		Values(key, value, squirrel.Expr("NOW()")).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert setting sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// LoadEncryptionKey decodes the stored key. Absent keys return repository.ErrNotFound.
func (r *SettingsRepository) LoadEncryptionKey(ctx context.Context) ([]byte, error) {
	encoded, err := r.GetSetting(ctx, EncryptionKeySetting)
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidKey, err)
	}
	return key, nil
}

func (r *SettingsRepository) StoreEncryptionKey(ctx context.Context, key []byte) error {
	return r.PutSetting(ctx, EncryptionKeySetting, base64.StdEncoding.EncodeToString(key))
}

var (
	_ port.SettingsStore      = (*SettingsRepository)(nil)
	_ port.EncryptionKeyStore = (*SettingsRepository)(nil)
)
