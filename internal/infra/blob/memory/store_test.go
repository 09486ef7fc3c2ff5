package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"raffleledger/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	meta := map[string]string{"k": "v"}
	info, err := s.Put(ctx, "archives/x.json", strings.NewReader("data"), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["k"] = "mutated"
	if info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "archives/x.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := s.Head(ctx, "archives/x.json")
	if err != nil || head.Metadata["k"] != "v" {
		t.Fatalf("metadata should be copied on put: %+v %v", head, err)
	}
	_, rc, err := s.Get(ctx, "archives/x.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "data" {
		t.Fatalf("unexpected body %q", body)
	}
	if _, err := s.Put(ctx, "misc/y", strings.NewReader("y"), core.PutOptions{}); err != nil {
		t.Fatalf("put misc: %v", err)
	}
	list, _ := s.List(ctx, "archives/")
	if len(list) != 1 || list[0].Key != "archives/x.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "archives/x.json"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := s.Delete(ctx, "archives/x.json"); ok {
		t.Fatalf("expected second delete to report missing key")
	}
	if _, err := s.Head(ctx, "archives/x.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "archives/x.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	if _, err := New().Put(context.Background(), " ", strings.NewReader(""), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if New().Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}
