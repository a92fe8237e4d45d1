package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
)

func TestStorePublishAndOpen(t *testing.T) {
	store := newTestStore(t)
	resource := "/artifact/" + testHash

	payload := []byte("payload")
	writeResource(t, store, resource, payload)

	reader, size, err := store.Open(resource)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if size != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", size)
	}
	if !store.Exists(resource) {
		t.Fatalf("expected Exists to report true after publish")
	}
}

func TestStoreOpenMissing(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Open("/artifact/" + testHash)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Exists("/artifact/" + testHash) {
		t.Fatalf("expected Exists to report false for missing resource")
	}
}

func TestStorePublishReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	resource := "/artifact/" + testHash

	writeResource(t, store, resource, []byte("first"))
	writeResource(t, store, resource, []byte("second"))

	reader, _, err := store.Open(resource)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer reader.Close()
	body, _ := io.ReadAll(reader)
	if string(body) != "second" {
		t.Fatalf("expected replaced content, got %q", body)
	}
}

func TestStoreOpenIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	resource := "/registry/" + testUUID + "/" + testHash

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}
	filePath, err := fs.entryPath(resource)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, _, err := store.Open(resource); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreDiscardRemovesTemp(t *testing.T) {
	store := newTestStore(t)
	temp, err := store.NewTemp()
	if err != nil {
		t.Fatalf("new temp error: %v", err)
	}
	path := temp.Name()
	temp.Close()
	store.Discard(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, stat err=%v", err)
	}
}

const (
	testUUID = "0b6f1f1e-8c2a-4e2a-9a3a-1234567890ab"
	testHash = "abcdefabcdefabcdefabcdefabcdefabcdefabcd"
)

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func writeResource(t *testing.T, store Store, resource string, payload []byte) {
	t.Helper()
	temp, err := store.NewTemp()
	if err != nil {
		t.Fatalf("new temp error: %v", err)
	}
	if _, err := io.Copy(temp, bytes.NewReader(payload)); err != nil {
		temp.Close()
		t.Fatalf("write temp error: %v", err)
	}
	if err := temp.Close(); err != nil {
		t.Fatalf("close temp error: %v", err)
	}
	if err := store.Publish(context.Background(), temp.Name(), resource); err != nil {
		t.Fatalf("publish error: %v", err)
	}
}
