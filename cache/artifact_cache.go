package cache

import (
	"context"
	"strconv"

	"github.com/komareader/core/preload"
)

// Cache adapts three byte-valued Namespaces (one per preload.Kind) to the
// preload.ArtifactCache contract, so the Preload Pipeline can use the
// full multi-tier cache (LRU + TTL + optional durable tier) in place of
// preload.MemoryArtifactCache in production.
type Cache struct {
	ctx context.Context
	ns  map[preload.Kind]*Namespace[[]byte]
}

// ByteCodec is the identity Codec[[]byte]: artifact bytes need no
// encode/decode step, only the optional compress/decompress Namespace
// already applies on the durable path.
type byteCodec struct{}

func (byteCodec) Encode(v []byte) ([]byte, error) { return v, nil }
func (byteCodec) Decode(b []byte) ([]byte, error) { return b, nil }

// ByteCodec returns the identity Codec[[]byte] used by NewCache's
// namespaces.
func ByteCodec() Codec[[]byte] { return byteCodec{} }

// NewCache builds a Cache from one NamespaceConfig per kind. A kind with
// no entry in cfgs falls back to spec.md §6's cache-namespace defaults
// (50 MiB byte cap, 1000 item cap, no TTL, not persistent); an entry that
// is present is used as given, so a zero ByteCap or ItemCap in it means
// no cap on that dimension.
func NewCache(cfgs map[preload.Kind]NamespaceConfig, durable DurableStore) *Cache {
	c := &Cache{ctx: context.Background(), ns: make(map[preload.Kind]*Namespace[[]byte])}
	for _, k := range []preload.Kind{preload.KindImage, preload.KindThumbnail, preload.KindUpscale} {
		cfg, ok := cfgs[k]
		if !ok {
			cfg = defaultNamespaceConfig(k)
		}
		var store DurableStore
		if cfg.Persistent {
			store = durable
		}
		c.ns[k] = NewNamespace[[]byte](cfg, store, ByteCodec())
	}
	return c
}

func defaultNamespaceConfig(k preload.Kind) NamespaceConfig {
	return NamespaceConfig{
		Name:    k.String(),
		ByteCap: 50 * 1024 * 1024,
		ItemCap: 1000,
	}
}

// Namespace exposes the underlying per-kind Namespace, e.g. for Stats()
// or Warmup() from the Book Coordinator.
func (c *Cache) Namespace(kind preload.Kind) *Namespace[[]byte] {
	return c.ns[kind]
}

func (c *Cache) Get(kind preload.Kind, vi int) ([]byte, bool) {
	ns, ok := c.ns[kind]
	if !ok {
		return nil, false
	}
	return ns.Get(c.ctx, fingerprintKey(vi))
}

func (c *Cache) Set(kind preload.Kind, vi int, data []byte) {
	if ns, ok := c.ns[kind]; ok {
		ns.Set(c.ctx, fingerprintKey(vi), data)
	}
}

func (c *Cache) ClearAll() {
	for _, ns := range c.ns {
		ns.Clear(c.ctx)
	}
}

func (c *Cache) ClearKind(kind preload.Kind) {
	if ns, ok := c.ns[kind]; ok {
		ns.Clear(c.ctx)
	}
}

func fingerprintKey(vi int) string {
	return strconv.Itoa(vi)
}
