package archive

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/canonical"
)

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	data := []byte(`{"content_hash":"x","payload":{}}`)
	hash := canonical.HashBytes(data)

	if err := store.Put(ctx, hash, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get returned %q, want %q", got, data)
	}

	ok, err := store.Exists(ctx, hash)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("Exists returned false for archived bundle")
	}
}

func TestFileStore_PutIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	data := []byte(`{"verdict":"WARN"}`)
	hash := canonical.HashBytes(data)

	for i := 0; i < 3; i++ {
		if err := store.Put(ctx, hash, data); err != nil {
			t.Fatalf("Put attempt %d failed: %v", i, err)
		}
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("bundle corrupted by repeated Put: %q", got)
	}
}

func TestFileStore_PutRejectsMismatchedHash(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	hash := canonical.HashBytes([]byte("original"))
	err = store.Put(context.Background(), hash, []byte("tampered"))
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}

	// Nothing may be written for a rejected bundle.
	ok, err := store.Exists(context.Background(), hash)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("rejected bundle was written anyway")
	}
}

func TestFileStore_RejectsMalformedKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	bad := []string{
		"",
		"deadbeef",
		"md5:" + strings.Repeat("a", 64),
		"sha256:tooshort",
		"sha256:" + strings.Repeat("z", 64),
	}
	for _, hash := range bad {
		if err := store.Put(ctx, hash, []byte("x")); err == nil {
			t.Errorf("Put accepted malformed key %q", hash)
		}
		if _, err := store.Get(ctx, hash); err == nil {
			t.Errorf("Get accepted malformed key %q", hash)
		}
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	hash := canonical.HashBytes([]byte("never stored"))
	_, err = store.Get(context.Background(), hash)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ok, err := store.Exists(context.Background(), hash)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Exists returned true for missing bundle")
	}
}
