package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"raffleledger/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "archives/a.json", strings.NewReader(`{"ok":true}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"raffles": "2"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "archives/a.json" || info.Size != 11 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "archives/a.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	head, err := store.Head(ctx, "archives/a.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "application/json" || head.Metadata["raffles"] != "2" {
		t.Fatalf("sidecar not read back: %+v", head)
	}
	got, rc, err := store.Get(ctx, "archives/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != `{"ok":true}` || got.ETag != head.ETag {
		t.Fatalf("unexpected get result %q %+v", body, got)
	}

	if _, err := store.Put(ctx, "other/b.txt", strings.NewReader("b"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "archives/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "archives/a.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Key != "archives/a.json" {
		t.Fatalf("expected sorted full listing, got %+v (%v)", all, err)
	}

	ok, err := store.Delete(ctx, "archives/a.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "archives", "a.json.meta")); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed, stat err %v", err)
	}
	ok, err = store.Delete(ctx, "archives/a.json")
	if err != nil || ok {
		t.Fatalf("second delete should report false, got %v %v", ok, err)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Head(ctx, "nope.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "   ", "../escape.txt", "a/../../b", "/abs.txt", "x.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestNewDefaultsAndCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "blobs")
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		t.Fatalf("expected root directory created: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestListFailsOnCorruptSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "a.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "a.json.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "a", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
