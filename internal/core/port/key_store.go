package port

import "context"

// EncryptionKeyStore persists the process-wide encryption key.
// LoadEncryptionKey returns repository.ErrNotFound when no key has been stored yet.
type EncryptionKeyStore interface {
	LoadEncryptionKey(ctx context.Context) ([]byte, error)
	StoreEncryptionKey(ctx context.Context, key []byte) error
}

// SettingsStore persists opaque string settings by key.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}
