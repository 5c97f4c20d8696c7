package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/infra/security"
	"github.com/azniosman/vms/internal/infra/telemetry"
	"github.com/azniosman/vms/internal/repository"
)

// CryptoService exposes symmetric encryption of at-rest fields to the rest of the application.
// Decrypt failures are ordinary results; the caller decides whether missing data is fatal.
type CryptoService struct {
	cipher  port.SymmetricCipher
	logger  *zap.Logger
	metrics *telemetry.SecurityMetrics
}

// NewCryptoService wraps cipher.
func NewCryptoService(cipher port.SymmetricCipher, logger *zap.Logger) *CryptoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CryptoService{cipher: cipher, logger: logger}
}

// WithMetrics counts decrypt failures by reason.
func (s *CryptoService) WithMetrics(metrics *telemetry.SecurityMetrics) *CryptoService {
	s.metrics = metrics
	return s
}

// Encrypt returns the base64 IV||CIPHERTEXT blob. A nil key selects the process key.
func (s *CryptoService) Encrypt(plaintext string, key []byte) (string, error) {
	return s.cipher.EncryptString(plaintext, key)
}

// Decrypt reverses Encrypt.
func (s *CryptoService) Decrypt(ciphertext string, key []byte) (string, error) {
	out, err := s.cipher.DecryptString(ciphertext, key)
	if err != nil {
		reason := "other"
		switch {
		case errors.Is(err, security.ErrMalformedCiphertext):
			reason = "malformed"
		case errors.Is(err, security.ErrAuthenticationFailed):
			reason = "authentication_failed"
		case errors.Is(err, security.ErrInvalidKey), errors.Is(err, security.ErrNoDefaultKey):
			reason = "key_unavailable"
		}
		s.metrics.DecryptFailure(reason)
		s.logger.Debug("decrypt rejected", zap.String("reason", reason))
		return "", err
	}
	return out, nil
}

// EncryptBytes is Encrypt for raw payloads; the blob is returned unencoded.
func (s *CryptoService) EncryptBytes(plaintext, key []byte) ([]byte, error) {
	return s.cipher.Encrypt(plaintext, key)
}

// DecryptBytes is Decrypt for raw blobs.
func (s *CryptoService) DecryptBytes(blob, key []byte) ([]byte, error) {
	return s.cipher.Decrypt(blob, key)
}

// EnsureEncryptionKey loads the process key from store, generating and storing one when absent.
// It reports whether a new key was created.
func EnsureEncryptionKey(ctx context.Context, store port.EncryptionKeyStore, keys port.KeyMaterialProvider) ([]byte, bool, error) {
	key, err := store.LoadEncryptionKey(ctx)
	switch {
	case err == nil:
		if len(key) != security.KeySize {
			return nil, false, fmt.Errorf("%w: stored key is %d bytes", security.ErrInvalidKey, len(key))
		}
		return key, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, persistenceError("load encryption key", err)
	}

	key, err = keys.Key()
	if err != nil {
		return nil, false, fmt.Errorf("generate encryption key: %w", err)
	}
	if err := store.StoreEncryptionKey(ctx, key); err != nil {
		return nil, false, persistenceError("store encryption key", err)
	}
	return key, true, nil
}

// SecureValues stores secret settings encrypted under the process key.
type SecureValues struct {
	settings port.SettingsStore
	crypto   *CryptoService
	audit    port.SecurityAuditor
	now      func() time.Time
}

const secureValuePrefix = "secure."

// NewSecureValues constructs a secure settings facade. audit may be nil.
func NewSecureValues(settings port.SettingsStore, crypto *CryptoService, audit port.SecurityAuditor) *SecureValues {
	return &SecureValues{
		settings: settings,
		crypto:   crypto,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Set encrypts plaintext under the process key and stores it under key.
func (v *SecureValues) Set(ctx context.Context, key, plaintext, actorID string) error {
	if key == "" {
		return fmt.Errorf("secure value key is required")
	}
	encoded, err := v.crypto.Encrypt(plaintext, nil)
	if err != nil {
		return fmt.Errorf("encrypt secure value: %w", err)
	}
	if err := v.settings.PutSetting(ctx, secureValuePrefix+key, encoded); err != nil {
		return persistenceError("store secure value", err)
	}
	if v.audit != nil {
		v.audit.Record(ctx, domain.NewSecurityEvent("", domain.EventSecureValueChanged,
			"secure value updated: "+key, v.now(), actorID, ""))
	}
	return nil
}

// Get loads and decrypts the value under key. Absent keys return repository.ErrNotFound.
func (v *SecureValues) Get(ctx context.Context, key string) (string, error) {
	encoded, err := v.settings.GetSetting(ctx, secureValuePrefix+key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		return "", persistenceError("load secure value", err)
	}
	return v.crypto.Decrypt(encoded, nil)
}
