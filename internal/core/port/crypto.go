package port

import "github.com/azniosman/vms/internal/core/domain"

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// PasswordHasher derives and verifies salted password hashes.
// Hash generates a fresh salt when salt is empty and returns the salt it used.
// Hashes and salts are base64 encoded.
type PasswordHasher interface {
	Hash(password string, salt string) (hash string, saltUsed string, err error)
	Verify(password, storedHash, storedSalt string) (bool, error)
}

// SymmetricCipher encrypts payloads into IV||CIPHERTEXT blobs. A nil key selects the process default.
type SymmetricCipher interface {
	Encrypt(plaintext, key []byte) ([]byte, error)
	Decrypt(blob, key []byte) ([]byte, error)
	EncryptString(plaintext string, key []byte) (string, error)
	DecryptString(encoded string, key []byte) (string, error)
}

// KeyMaterialProvider produces cryptographically secure random material.
type KeyMaterialProvider interface {
	RandomBytes(n int) ([]byte, error)
	Salt() ([]byte, error)
	Key() ([]byte, error)
	SessionToken() (string, error)
}
