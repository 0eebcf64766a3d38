//go:build gcp

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCSStore.
type GCSConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSStore creates a new GCS-backed evidence archive.
// The client uses Application Default Credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSStore) object(raw string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + raw + ".json")
}

// Put uploads the bundle unless the object already exists.
func (s *GCSStore) Put(ctx context.Context, contentHash string, data []byte) error {
	raw, err := parseHash(contentHash)
	if err != nil {
		return err
	}
	if err := verifyHash(raw, data); err != nil {
		return err
	}

	obj := s.object(raw)
	if _, err := obj.Attrs(ctx); err == nil {
		return nil // Already archived
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive: gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: gcs close failed: %w", err)
	}
	return nil
}

// Get downloads a bundle by its content hash.
func (s *GCSStore) Get(ctx context.Context, contentHash string) ([]byte, error) {
	raw, err := parseHash(contentHash)
	if err != nil {
		return nil, err
	}

	reader, err := s.object(raw).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, contentHash)
		}
		return nil, fmt.Errorf("archive: gcs get failed for %s: %w", contentHash, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs read failed: %w", err)
	}
	return data, nil
}

// Exists checks whether a bundle is archived in GCS.
func (s *GCSStore) Exists(ctx context.Context, contentHash string) (bool, error) {
	raw, err := parseHash(contentHash)
	if err != nil {
		return false, err
	}

	if _, err := s.object(raw).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("archive: gcs attrs error: %w", err)
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
