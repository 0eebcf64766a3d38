package archive

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStoreFromEnv_Default(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("ARCHIVE_STORAGE_TYPE", "")
	t.Setenv("DATA_DIR", tmpDir)

	store, err := NewStoreFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewStoreFromEnv failed: %v", err)
	}

	fs, ok := store.(*FileStore)
	if !ok {
		t.Fatalf("expected *FileStore, got %T", store)
	}

	expectedBase := filepath.Join(tmpDir, "evidence")
	if fs.baseDir != expectedBase {
		t.Errorf("expected baseDir %s, got %s", expectedBase, fs.baseDir)
	}
}

func TestNewStoreFromEnv_ExplicitFS(t *testing.T) {
	t.Setenv("ARCHIVE_STORAGE_TYPE", "fs")
	t.Setenv("DATA_DIR", t.TempDir())

	store, err := NewStoreFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewStoreFromEnv failed: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", store)
	}
}

func TestNewStoreFromEnv_S3MissingBucket(t *testing.T) {
	t.Setenv("ARCHIVE_STORAGE_TYPE", "s3")
	t.Setenv("ARCHIVE_S3_BUCKET", "")

	_, err := NewStoreFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing S3 bucket")
	}
	if !strings.Contains(err.Error(), "ARCHIVE_S3_BUCKET") {
		t.Errorf("expected error naming ARCHIVE_S3_BUCKET, got: %v", err)
	}
}

// Without a bucket, "gcs" must fail under every build: the gcp build
// demands ARCHIVE_GCS_BUCKET, the default build rejects the backend.
func TestNewStoreFromEnv_GCSWithoutBucket(t *testing.T) {
	t.Setenv("ARCHIVE_STORAGE_TYPE", "gcs")
	t.Setenv("ARCHIVE_GCS_BUCKET", "")

	if _, err := NewStoreFromEnv(context.Background()); err == nil {
		t.Fatal("expected error for GCS without a bucket")
	}
}

func TestNewStoreFromEnv_UnknownType(t *testing.T) {
	t.Setenv("ARCHIVE_STORAGE_TYPE", "tape")

	_, err := NewStoreFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown storage type")
	}
	if !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported-type error, got: %v", err)
	}
}
