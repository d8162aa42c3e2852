package cache

import (
	"context"
	"testing"
	"time"
)

func TestManagerCleanupAllExpired(t *testing.T) {
	m := NewManager()
	defer m.Close()

	ns := NewNamespace[string](NamespaceConfig{Name: "thumbs", TTL: time.Millisecond}, nil, nil)
	m.Register(ns)

	ctx := context.Background()
	ns.Set(ctx, "a", "v")
	time.Sleep(5 * time.Millisecond)

	removed := m.CleanupAllExpired()
	if removed["thumbs"] != 1 {
		t.Errorf("removed[thumbs] = %d, want 1", removed["thumbs"])
	}
}

func TestManagerWarmupAll(t *testing.T) {
	m := NewManager()
	defer m.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	store.Set(ctx, "images", "a", DurableRecord{Value: []byte(`"x"`), CreatedAt: time.Now()})

	ns := NewNamespace[string](NamespaceConfig{Name: "images", Persistent: true}, store, JSONCodec[string]())
	m.Register(ns)
	m.RegisterStore("main", store)

	if err := m.WarmupAll(ctx); err != nil {
		t.Fatalf("warmup all: %v", err)
	}
	if !ns.Has("a") {
		t.Error("expected namespace warmed from durable store")
	}
}

func TestManagerStats(t *testing.T) {
	m := NewManager()
	defer m.Close()

	ns := NewNamespace[string](NamespaceConfig{Name: "n", ItemCap: 5}, nil, nil)
	m.Register(ns)
	ns.Set(context.Background(), "a", "v")

	stats := m.Stats()
	s, ok := stats["n"]
	if !ok {
		t.Fatal("expected stats entry for namespace n")
	}
	if s.Items != 1 {
		t.Errorf("items = %d, want 1", s.Items)
	}
	if s.String() == "" {
		t.Error("expected non-empty Stats.String()")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	rec := DurableRecord{Value: []byte("hello"), CreatedAt: time.Now()}
	if err := store.Set(ctx, "ns", "k1", rec); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, "ns", "k1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got.Value) != "hello" {
		t.Errorf("value = %q, want hello", got.Value)
	}

	n, err := store.Count(ctx, "ns")
	if err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v, want 1", n, err)
	}

	if err := store.Delete(ctx, "ns", "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "ns", "k1"); ok {
		t.Error("expected key gone after delete")
	}
}

func TestSQLiteStoreExpiry(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	rec := DurableRecord{Value: []byte("v"), CreatedAt: time.Now(), ExpiresAt: time.Now().Add(-time.Second)}
	store.Set(ctx, "ns", "k", rec)

	if _, ok, _ := store.Get(ctx, "ns", "k"); ok {
		t.Error("expected already-expired record to read back as a miss")
	}
}
