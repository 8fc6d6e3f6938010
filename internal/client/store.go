package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrQuotaExceeded is returned by a Store when the underlying durable
// storage is out of space.
var ErrQuotaExceeded = errors.New("client: storage quota exceeded")

// Store is the client-side durable key/value storage used for the profile
// and the bounded message cache. Implementations must translate their
// out-of-space condition into ErrQuotaExceeded.
type Store interface {
	Put(key, value string) error
	Get(key string) (value string, ok bool, err error)
	Delete(key string) error
}

// FileStore keeps each key as a JSON file in a directory, typically under
// the user config dir.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("client: failed to create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// DefaultStoreDir returns the per-user storage directory.
func DefaultStoreDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("client: no user config dir: %w", err)
	}
	return filepath.Join(base, "classpage-chat"), nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Put(key, value string) error {
	if err := os.WriteFile(s.path(key), []byte(value), 0o600); err != nil {
		if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("client: store write failed: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("client: store read failed: %w", err)
	}
	return string(data), true, nil
}

func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("client: store delete failed: %w", err)
	}
	return nil
}
