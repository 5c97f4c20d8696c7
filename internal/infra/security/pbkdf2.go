package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/azniosman/vms/internal/core/port"
)

var (
	errInvalidHashFormat = errors.New("pbkdf2: invalid stored hash or salt encoding")
	errInvalidConfig     = errors.New("pbkdf2: invalid configuration")
)

// PBKDF2Config defines tunable parameters for PBKDF2-HMAC-SHA256 password hashing.
type PBKDF2Config struct {
	Iterations int
	KeyLength  int
	SaltLength int
}

// DefaultPBKDF2Config returns 100k iterations with a 32-byte key and 16-byte salt.
func DefaultPBKDF2Config() PBKDF2Config {
	return PBKDF2Config{
		Iterations: 100_000,
		KeyLength:  32,
		SaltLength: SaltSize,
	}
}

// Validate checks the configuration against minimum safe values.
func (c PBKDF2Config) Validate() error {
	if c.Iterations < 1000 {
		return fmt.Errorf("%w: iterations must be at least 1000", errInvalidConfig)
	}
	if c.KeyLength < 16 {
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	if c.SaltLength < SaltSize {
		return fmt.Errorf("%w: salt length must be at least %d bytes", errInvalidConfig, SaltSize)
	}
	return nil
}

// PBKDF2Hasher derives password hashes with a deliberately slow KDF.
// It keeps no password state between calls.
type PBKDF2Hasher struct {
	cfg  PBKDF2Config
	keys port.KeyMaterialProvider
}

// NewPBKDF2Hasher validates cfg and returns a hasher drawing salts from keys.
func NewPBKDF2Hasher(cfg PBKDF2Config, keys port.KeyMaterialProvider) (*PBKDF2Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		keys = NewKeyMaterial()
	}
	return &PBKDF2Hasher{cfg: cfg, keys: keys}, nil
}

// Config returns the active parameters.
func (h *PBKDF2Hasher) Config() PBKDF2Config {
	return h.cfg
}

// Hash derives a hash for password. An empty salt makes the hasher generate one.
func (h *PBKDF2Hasher) Hash(password, salt string) (string, string, error) {
	var raw []byte
	if salt == "" {
		generated, err := h.keys.RandomBytes(h.cfg.SaltLength)
		if err != nil {
			return "", "", fmt.Errorf("pbkdf2: generate salt: %w", err)
		}
		raw = generated
		salt = base64.StdEncoding.EncodeToString(raw)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(salt)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", errInvalidHashFormat, err)
		}
		raw = decoded
	}

	sum := pbkdf2.Key([]byte(password), raw, h.cfg.Iterations, h.cfg.KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(sum), salt, nil
}

// Verify recomputes the hash with the stored salt and compares in constant time.
func (h *PBKDF2Hasher) Verify(password, storedHash, storedSalt string) (bool, error) {
	expected, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil || len(expected) == 0 {
		return false, errInvalidHashFormat
	}
	salt, err := base64.StdEncoding.DecodeString(storedSalt)
	if err != nil {
		return false, errInvalidHashFormat
	}

	computed := pbkdf2.Key([]byte(password), salt, h.cfg.Iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

var _ port.PasswordHasher = (*PBKDF2Hasher)(nil)
