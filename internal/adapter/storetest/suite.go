// Package storetest is a conformance suite for port.KVStore implementations.
package storetest

import (
	"context"
	"testing"

	"github.com/vertextoedge/filetransfer/internal/port"
)

// TestKVStore runs every conformance check against an empty store.
func TestKVStore(t *testing.T, store port.KVStore) {
	t.Run("GetMissing", func(t *testing.T) {
		testGetMissing(t, store)
	})
	t.Run("PutGet", func(t *testing.T) {
		testPutGet(t, store)
	})
	t.Run("Overwrite", func(t *testing.T) {
		testOverwrite(t, store)
	})
	t.Run("Delete", func(t *testing.T) {
		testDelete(t, store)
	})
	t.Run("ListPrefix", func(t *testing.T) {
		testListPrefix(t, store)
	})
}

func testGetMissing(t *testing.T, store port.KVStore) {
	_, ok, err := store.Get(context.Background(), "paused:/does/not/exist")
	if err != nil {
		t.Fatalf("Get(missing): got error %v, want nil", err)
	}
	if ok {
		t.Error("Get(missing): ok = true, want false")
	}
}

func testPutGet(t *testing.T, store port.KVStore) {
	ctx := context.Background()
	key := "download:/tmp/file with spaces.pdf"
	value := `{"uri":"/tmp/file with spaces.pdf"}`

	if err := store.Put(ctx, key, value); err != nil {
		t.Fatalf("Put(%q): got error %v", key, err)
	}

	got, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get(%q): got error %v", key, err)
	}
	if !ok {
		t.Fatalf("Get(%q): ok = false, want true", key)
	}
	if got != value {
		t.Errorf("Get(%q) = %q, want %q", key, got, value)
	}
}

func testOverwrite(t *testing.T, store port.KVStore) {
	ctx := context.Background()
	key := "paused:/tmp/overwrite.bin"

	if err := store.Put(ctx, key, "first"); err != nil {
		t.Fatalf("Put(first): got error %v", err)
	}
	if err := store.Put(ctx, key, "second"); err != nil {
		t.Fatalf("Put(second): got error %v", err)
	}

	got, _, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get(%q): got error %v", key, err)
	}
	if got != "second" {
		t.Errorf("Get(%q) = %q, want %q", key, got, "second")
	}
}

func testDelete(t *testing.T, store port.KVStore) {
	ctx := context.Background()
	key := "tus::delete-me::1"

	if err := store.Put(ctx, key, "v"); err != nil {
		t.Fatalf("Put(%q): got error %v", key, err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete(%q): got error %v", key, err)
	}
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Errorf("Get(%q) after Delete: ok = true, want false", key)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete(%q) twice: got error %v, want nil", key, err)
	}
}

func testListPrefix(t *testing.T, store port.KVStore) {
	ctx := context.Background()
	entries := map[string]string{
		"tus::abc::2":   "b",
		"tus::abc::1":   "a",
		"tus::abcd::1":  "other fingerprint",
		"tus::a%c::1":   "wildcard lookalike",
		"paused:tus::x": "unrelated",
	}
	for k, v := range entries {
		if err := store.Put(ctx, k, v); err != nil {
			t.Fatalf("Put(%q): got error %v", k, err)
		}
	}

	got, err := store.List(ctx, "tus::abc::")
	if err != nil {
		t.Fatalf("List: got error %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List: got %d entries %v, want 2", len(got), got)
	}
	if got[0].Key != "tus::abc::1" || got[0].Value != "a" {
		t.Errorf("List[0] = %+v, want tus::abc::1=a", got[0])
	}
	if got[1].Key != "tus::abc::2" || got[1].Value != "b" {
		t.Errorf("List[1] = %+v, want tus::abc::2=b", got[1])
	}

	none, err := store.List(ctx, "nothing-here:")
	if err != nil {
		t.Fatalf("List(empty): got error %v", err)
	}
	if len(none) != 0 {
		t.Errorf("List(empty): got %d entries, want 0", len(none))
	}
}
