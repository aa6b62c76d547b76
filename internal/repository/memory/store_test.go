package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, _, err := store.Get(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Get on empty store = %v, want ErrNotFound", err)
	}

	version, err := store.Put(ctx, []byte(`{"a":1}`), "")
	if err != nil {
		t.Fatalf("initial Put returned error: %v", err)
	}

	payload, got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
	if string(payload) != `{"a":1}` {
		t.Errorf("payload = %q", payload)
	}
}

func TestStoreVersionConflict(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	v1, err := store.Put(ctx, []byte("one"), "")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if _, err := store.Put(ctx, []byte("two"), "stale"); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("stale Put = %v, want ErrVersionConflict", err)
	}
	// Creating over an existing document is also a conflict.
	if _, err := store.Put(ctx, []byte("two"), ""); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("create over existing = %v, want ErrVersionConflict", err)
	}

	v2, err := store.Put(ctx, []byte("two"), v1)
	if err != nil {
		t.Fatalf("Put with current version returned error: %v", err)
	}
	if v2 == v1 {
		t.Errorf("version did not advance: %q", v2)
	}
}

func TestStoreSeed(t *testing.T) {
	store := NewStore()
	store.Seed([]byte("seeded"))

	payload, version, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(payload) != "seeded" {
		t.Errorf("payload = %q", payload)
	}
	if version == "" {
		t.Error("expected non-empty version after seed")
	}
}
