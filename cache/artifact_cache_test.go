package cache

import (
	"testing"

	"github.com/komareader/core/preload"
)

func TestArtifactCacheRoundTrip(t *testing.T) {
	c := NewCache(nil, nil)
	c.Set(preload.KindThumbnail, 3, []byte("thumb-bytes"))

	got, ok := c.Get(preload.KindThumbnail, 3)
	if !ok || string(got) != "thumb-bytes" {
		t.Fatalf("got %q,%v want thumb-bytes,true", got, ok)
	}

	if _, ok := c.Get(preload.KindImage, 3); ok {
		t.Error("expected a miss for a different kind at the same index")
	}
}

func TestArtifactCacheClearKind(t *testing.T) {
	c := NewCache(nil, nil)
	c.Set(preload.KindImage, 1, []byte("a"))
	c.Set(preload.KindThumbnail, 1, []byte("b"))

	c.ClearKind(preload.KindImage)

	if _, ok := c.Get(preload.KindImage, 1); ok {
		t.Error("expected image entry cleared")
	}
	if _, ok := c.Get(preload.KindThumbnail, 1); !ok {
		t.Error("expected thumbnail entry to survive ClearKind(image)")
	}
}

func TestArtifactCacheClearAll(t *testing.T) {
	c := NewCache(nil, nil)
	c.Set(preload.KindImage, 1, []byte("a"))
	c.Set(preload.KindUpscale, 1, []byte("b"))

	c.ClearAll()

	if _, ok := c.Get(preload.KindImage, 1); ok {
		t.Error("expected image entry cleared")
	}
	if _, ok := c.Get(preload.KindUpscale, 1); ok {
		t.Error("expected upscale entry cleared")
	}
}

func TestArtifactCachePersistentNamespace(t *testing.T) {
	store := NewMemoryStore()
	cfgs := map[preload.Kind]NamespaceConfig{
		preload.KindThumbnail: {Name: "thumbnail", Persistent: true, ItemCap: 1},
	}
	c := NewCache(cfgs, store)

	c.Set(preload.KindThumbnail, 1, []byte("one"))
	c.Set(preload.KindThumbnail, 2, []byte("two")) // evicts 1 from memory

	if _, ok := c.Get(preload.KindThumbnail, 1); !ok {
		t.Error("expected durable rehydration of evicted thumbnail")
	}
}
