// Package archive provides content-addressed storage for canonical
// evidence bundles. Bundles are keyed by the SHA-256 content hash the
// packager computed; every backend verifies the key against the bytes
// before writing, so an archive entry can always be re-hashed to prove
// it is the bundle a decision record points at.
//
// There is deliberately no delete operation: bundles referenced by
// committed decision records are retained for audit.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrNotFound is returned when no bundle exists for a content hash.
	ErrNotFound = errors.New("archive: evidence bundle not found")

	// ErrHashMismatch is returned when the supplied key does not match
	// the SHA-256 of the data.
	ErrHashMismatch = errors.New("archive: content hash does not match data")
)

// Store is the contract for content-addressed evidence storage.
// Put is idempotent: writing the same bundle twice is a no-op.
type Store interface {
	Put(ctx context.Context, contentHash string, data []byte) error
	Get(ctx context.Context, contentHash string) ([]byte, error)
	Exists(ctx context.Context, contentHash string) (bool, error)
}

// parseHash validates a "sha256:<64 hex>" reference and returns the raw
// hex digest.
func parseHash(hash string) (string, error) {
	if len(hash) < 7 || hash[:7] != "sha256:" {
		return "", fmt.Errorf("archive: invalid hash format: %s", hash)
	}
	raw := hash[7:]
	if len(raw) != 64 {
		return "", fmt.Errorf("archive: invalid hash length: %s", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("archive: invalid hash hex: %w", err)
	}
	return raw, nil
}

// verifyHash checks that data hashes to the raw digest.
func verifyHash(raw string, data []byte) error {
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != raw {
		return ErrHashMismatch
	}
	return nil
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new evidence archive at the specified directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("archive: failed to ensure directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Put writes the bundle unless it is already present.
func (s *FileStore) Put(ctx context.Context, contentHash string, data []byte) error {
	raw, err := parseHash(contentHash)
	if err != nil {
		return err
	}
	if err := verifyHash(raw, data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, raw+".json")
	if _, err := os.Stat(path); err == nil {
		return nil // Already archived
	}

	// Write to temp, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("archive: failed to write bundle: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("archive: failed to commit bundle: %w", err)
	}
	return nil
}

// Get retrieves a bundle by its content hash.
func (s *FileStore) Get(ctx context.Context, contentHash string) ([]byte, error) {
	raw, err := parseHash(contentHash)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.baseDir, raw+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, contentHash)
		}
		return nil, fmt.Errorf("archive: read failed: %w", err)
	}
	return data, nil
}

// Exists reports whether a bundle is archived for the content hash.
func (s *FileStore) Exists(ctx context.Context, contentHash string) (bool, error) {
	raw, err := parseHash(contentHash)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(filepath.Join(s.baseDir, raw+".json"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("archive: stat failed: %w", err)
}
