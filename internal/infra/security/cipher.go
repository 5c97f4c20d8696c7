package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/azniosman/vms/internal/core/port"
)

// IVSize is the length of the IV prefix on every ciphertext blob.
const IVSize = 16

var (
	// ErrDecryption is the parent of every decrypt failure.
	ErrDecryption = errors.New("security: decryption failed")
	// ErrMalformedCiphertext reports a blob too short or badly encoded to contain an IV and ciphertext.
	ErrMalformedCiphertext = fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	// ErrAuthenticationFailed reports a GCM tag mismatch, a CBC padding failure or a wrong key.
	ErrAuthenticationFailed = fmt.Errorf("%w: ciphertext rejected", ErrDecryption)

	// ErrInvalidKey reports a key that is not 32 bytes long.
	ErrInvalidKey = errors.New("security: encryption key must be 32 bytes")
	// ErrNoDefaultKey reports that no key was supplied and none was loaded at startup.
	ErrNoDefaultKey = errors.New("security: default encryption key not loaded")
)

// CipherMode selects the AES block mode behind the IV||CIPHERTEXT layout.
type CipherMode string

const (
	// CipherModeGCM authenticates the ciphertext with a 16-byte tag, using the IV as a 16-byte nonce.
	CipherModeGCM CipherMode = "gcm"
	// CipherModeCBC is PKCS#7-padded AES-CBC, kept for blobs written by older deployments.
	CipherModeCBC CipherMode = "cbc"
)

// ParseCipherMode normalises a configured mode, defaulting to GCM.
func ParseCipherMode(value string) CipherMode {
	if strings.EqualFold(strings.TrimSpace(value), string(CipherModeCBC)) {
		return CipherModeCBC
	}
	return CipherModeGCM
}

// Cipher encrypts payloads with AES-256 and a fresh random IV per call.
type Cipher struct {
	mode CipherMode
	keys port.KeyMaterialProvider

	mu         sync.RWMutex
	defaultKey []byte
}

// NewCipher constructs a cipher. Use SetDefaultKey once the process key is loaded.
func NewCipher(mode CipherMode, keys port.KeyMaterialProvider) *Cipher {
	if mode != CipherModeCBC {
		mode = CipherModeGCM
	}
	if keys == nil {
		keys = NewKeyMaterial()
	}
	return &Cipher{mode: mode, keys: keys}
}

// Mode returns the configured block mode.
func (c *Cipher) Mode() CipherMode {
	return c.mode
}

// SetDefaultKey installs the process-wide key used when callers pass a nil key.
func (c *Cipher) SetDefaultKey(key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	copied := make([]byte, KeySize)
	copy(copied, key)

	c.mu.Lock()
	ZeroBytes(c.defaultKey)
	c.defaultKey = copied
	c.mu.Unlock()
	return nil
}

func (c *Cipher) resolveKey(key []byte) ([]byte, error) {
	if key == nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.defaultKey == nil {
			return nil, ErrNoDefaultKey
		}
		return c.defaultKey, nil
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Encrypt returns IV||CIPHERTEXT for plaintext.
func (c *Cipher) Encrypt(plaintext, key []byte) ([]byte, error) {
	k, err := c.resolveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("security: create block cipher: %w", err)
	}

	iv, err := c.keys.RandomBytes(IVSize)
	if err != nil {
		return nil, fmt.Errorf("security: generate iv: %w", err)
	}

	out := make([]byte, IVSize, IVSize+len(plaintext)+aes.BlockSize)
	copy(out, iv)

	switch c.mode {
	case CipherModeCBC:
		padded := pkcs7Pad(plaintext, aes.BlockSize)
		ct := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
		return append(out, ct...), nil
	default:
		aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return nil, fmt.Errorf("security: create gcm: %w", err)
		}
		return aead.Seal(out, iv, plaintext, nil), nil
	}
}

// Decrypt reverses Encrypt. Failures caused by the blob wrap ErrDecryption; an unusable key
// yields ErrInvalidKey or ErrNoDefaultKey instead.
func (c *Cipher) Decrypt(blob, key []byte) ([]byte, error) {
	if len(blob) < IVSize {
		return nil, ErrMalformedCiphertext
	}

	k, err := c.resolveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("security: create block cipher: %w", err)
	}

	iv, body := blob[:IVSize], blob[IVSize:]

	switch c.mode {
	case CipherModeCBC:
		if len(body) == 0 || len(body)%aes.BlockSize != 0 {
			return nil, ErrMalformedCiphertext
		}
		pt := make([]byte, len(body))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, body)
		unpadded, ok := pkcs7Unpad(pt, aes.BlockSize)
		if !ok {
			return nil, ErrAuthenticationFailed
		}
		return unpadded, nil
	default:
		aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return nil, fmt.Errorf("security: create gcm: %w", err)
		}
		pt, err := aead.Open(nil, iv, body, nil)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}
		if pt == nil {
			pt = []byte{}
		}
		return pt, nil
	}
}

// EncryptString encrypts plaintext and base64 encodes the blob for storage.
func (c *Cipher) EncryptString(plaintext string, key []byte) (string, error) {
	blob, err := c.Encrypt([]byte(plaintext), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString decodes a stored base64 blob and decrypts it.
func (c *Cipher) DecryptString(encoded string, key []byte) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	pt, err := c.Decrypt(blob, key)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// pkcs7Unpad checks every padding byte without returning early.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, false
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize {
		return nil, false
	}
	bad := byte(0)
	for _, b := range data[n-padLen:] {
		bad |= b ^ byte(padLen)
	}
	if bad != 0 {
		return nil, false
	}
	return data[:n-padLen], true
}

var _ port.SymmetricCipher = (*Cipher)(nil)
