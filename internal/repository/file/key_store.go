package file

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/azniosman/vms/internal/core/port"
	"github.com/azniosman/vms/internal/repository"
)

const keyFileMode fs.FileMode = 0o600

// KeyStore keeps the process encryption key base64 encoded in a single file readable only by its owner.
type KeyStore struct {
	path string
}

func NewKeyStore(path string) *KeyStore {
	return &KeyStore{path: path}
}

// LoadEncryptionKey returns repository.ErrNotFound when the file does not exist yet.
func (s *KeyStore) LoadEncryptionKey(_ context.Context) ([]byte, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("stat key file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: key file %s is accessible by group or others (%s)", repository.ErrInvalidKey, s.path, info.Mode().Perm())
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidKey, err)
	}
	return key, nil
}

// StoreEncryptionKey writes the key atomically. An existing key file is never overwritten.
func (s *KeyStore) StoreEncryptionKey(_ context.Context, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".key-*")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(keyFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod key file: %w", err)
	}
	if _, err := tmp.WriteString(base64.StdEncoding.EncodeToString(key) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}

	if err := os.Link(tmp.Name(), s.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("key file %s already exists", s.path)
		}
		return fmt.Errorf("install key file: %w", err)
	}
	return nil
}

var _ port.EncryptionKeyStore = (*KeyStore)(nil)
