package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/core/domain"
)

const (
	// SaltSize is the per-credential salt length in bytes.
	SaltSize = 16
	// KeySize is the symmetric key length in bytes (AES-256).
	KeySize = 32
	// SessionTokenSize is the number of random bytes behind a session id.
	SessionTokenSize = 32
)

// ErrEntropy reports that the secure random source could not be read.
var ErrEntropy = errors.New("security: entropy source unavailable")

// KeyMaterial generates salts, keys and session tokens from a CSPRNG.
type KeyMaterial struct {
	source     io.Reader
	policy     domain.EntropyPolicy
	logger     *zap.Logger
	onDegraded func(error)

	fallbackOnce sync.Once
	fallbackMu   sync.Mutex
	fallback     *mrand.ChaCha8
}

// KeyMaterialOption customises a KeyMaterial provider.
type KeyMaterialOption func(*KeyMaterial)

// WithEntropySource overrides crypto/rand.Reader.
func WithEntropySource(r io.Reader) KeyMaterialOption {
	return func(k *KeyMaterial) {
		if r != nil {
			k.source = r
		}
	}
}

// WithEntropyPolicy controls whether a degraded fallback is allowed.
func WithEntropyPolicy(p domain.EntropyPolicy) KeyMaterialOption {
	return func(k *KeyMaterial) { k.policy = p }
}

// WithKeyMaterialLogger attaches a logger.
func WithKeyMaterialLogger(logger *zap.Logger) KeyMaterialOption {
	return func(k *KeyMaterial) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithDegradedHook registers a callback invoked every time the fallback generator is used.
func WithDegradedHook(fn func(error)) KeyMaterialOption {
	return func(k *KeyMaterial) { k.onDegraded = fn }
}

// NewKeyMaterial builds a provider reading from crypto/rand with a strict entropy policy.
func NewKeyMaterial(opts ...KeyMaterialOption) *KeyMaterial {
	k := &KeyMaterial{
		source: rand.Reader,
		policy: domain.NewEntropyPolicy(domain.EntropyPolicyStrict),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// RandomBytes returns n bytes from the secure source.
func (k *KeyMaterial) RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("security: random length must be positive, got %d", n)
	}

	buf := make([]byte, n)
	_, err := io.ReadFull(k.source, buf)
	if err == nil {
		return buf, nil
	}

	if !k.policy.AllowsFallback() {
		k.logger.Error("secure random source failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}

	k.logger.Error("secure random source failed, using degraded generator", zap.Error(err))
	if k.onDegraded != nil {
		k.onDegraded(err)
	}

	k.fallbackOnce.Do(k.seedFallback)
	k.fallbackMu.Lock()
	_, _ = k.fallback.Read(buf)
	k.fallbackMu.Unlock()
	return buf, nil
}

func (k *KeyMaterial) seedFallback() {
	var raw [16]byte
	binary.LittleEndian.PutUint64(raw[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(raw[8:], uint64(os.Getpid()))
	seed := sha256.Sum256(raw[:])
	k.fallback = mrand.NewChaCha8(seed)
}

// Salt returns a fresh 16-byte salt.
func (k *KeyMaterial) Salt() ([]byte, error) {
	return k.RandomBytes(SaltSize)
}

// Key returns a fresh 256-bit key.
func (k *KeyMaterial) Key() ([]byte, error) {
	return k.RandomBytes(KeySize)
}

// SessionToken returns a URL-safe encoding of 32 random bytes.
func (k *KeyMaterial) SessionToken() (string, error) {
	buf, err := k.RandomBytes(SessionTokenSize)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, log-safe identifier for a secret token.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	return HashToken(token)[:12]
}

// ZeroBytes overwrites b in place.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
