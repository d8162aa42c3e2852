package cache

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// NamespaceConfig holds the per-namespace knobs of spec.md §4.4.
type NamespaceConfig struct {
	Name             string
	ByteCap          int64
	ItemCap          int
	TTL              time.Duration // 0 = none
	Persistent       bool
	DurableStoreName string
}

// Namespace is an LRU+TTL memory cache over values of type T, optionally
// shadowed by a DurableStore when Persistent is set.
type Namespace[T any] struct {
	cfg     NamespaceConfig
	durable DurableStore
	codec   Codec[T]

	mu    sync.Mutex
	lru   *lruList[T]
	bytes int64

	hits   atomic.Int64
	misses atomic.Int64
}

// NewNamespace constructs a Namespace. durable and codec may be nil when
// cfg.Persistent is false.
func NewNamespace[T any](cfg NamespaceConfig, durable DurableStore, codec Codec[T]) *Namespace[T] {
	return &Namespace[T]{
		cfg:     cfg,
		durable: durable,
		codec:   codec,
		lru:     newLRUList[T](),
	}
}

// Get resolves key: a non-expired memory hit touches and returns it;
// otherwise, if the namespace is persistent, it falls back to the
// durable store and re-hydrates memory on a hit. Durable failures are
// logged and treated as a miss — they never fail the cache semantics.
func (n *Namespace[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := n.getMemory(key); ok {
		n.hits.Add(1)
		return v, true
	}

	if !n.cfg.Persistent || n.durable == nil {
		n.misses.Add(1)
		var zero T
		return zero, false
	}

	rec, ok, err := n.durable.Get(ctx, n.cfg.Name, key)
	if err != nil {
		log.Printf("cache: namespace %q durable get(%q) failed, falling back to memory-only: %v", n.cfg.Name, key, err)
		n.misses.Add(1)
		var zero T
		return zero, false
	}
	if !ok {
		n.misses.Add(1)
		var zero T
		return zero, false
	}

	raw, err := maybeDecompress(rec.Value, rec.Compressed)
	if err != nil {
		log.Printf("cache: namespace %q decompress(%q) failed: %v", n.cfg.Name, key, err)
		n.misses.Add(1)
		var zero T
		return zero, false
	}
	value, err := n.codec.Decode(raw)
	if err != nil {
		log.Printf("cache: namespace %q decode(%q) failed: %v", n.cfg.Name, key, err)
		n.misses.Add(1)
		var zero T
		return zero, false
	}

	n.mu.Lock()
	n.putLocked(key, CacheEntry[T]{Value: value, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt, Size: estimateSize(value)})
	n.evictLocked()
	n.mu.Unlock()

	n.hits.Add(1)
	return value, true
}

// GetSync checks memory only, counting the lookup as a hit or a miss.
func (n *Namespace[T]) GetSync(key string) (T, bool) {
	v, ok := n.getMemory(key)
	if ok {
		n.hits.Add(1)
	} else {
		n.misses.Add(1)
	}
	return v, ok
}

// getMemory looks key up in memory, dropping it if expired, without
// touching the hit/miss counters.
func (n *Namespace[T]) getMemory(key string) (T, bool) {
	now := time.Now()
	n.mu.Lock()
	entry, ok := n.lru.touch(key)
	if ok && entry.Expired(now) {
		n.removeLocked(key)
		ok = false
	}
	n.mu.Unlock()

	if !ok {
		var zero T
		return zero, false
	}
	return entry.Value, true
}

// Set inserts value under key, writing through to the durable store when
// persistent, then runs eviction.
func (n *Namespace[T]) Set(ctx context.Context, key string, value T, size ...int64) error {
	now := time.Now()
	sz := estimateSize(value)
	if len(size) > 0 {
		sz = size[0]
	}
	var expires time.Time
	if n.cfg.TTL > 0 {
		expires = now.Add(n.cfg.TTL)
	}

	n.mu.Lock()
	n.putLocked(key, CacheEntry[T]{Value: value, CreatedAt: now, ExpiresAt: expires, Size: sz})
	n.evictLocked()
	n.mu.Unlock()

	if !n.cfg.Persistent || n.durable == nil {
		return nil
	}
	raw, err := n.codec.Encode(value)
	if err != nil {
		return err
	}
	data, compressed := maybeCompress(raw)
	if err := n.durable.Set(ctx, n.cfg.Name, key, DurableRecord{
		Value: data, Compressed: compressed, CreatedAt: now, ExpiresAt: expires,
	}); err != nil {
		log.Printf("cache: namespace %q durable set(%q) failed, memory tier unaffected: %v", n.cfg.Name, key, err)
	}
	return nil
}

// Delete removes key from memory and, when persistent, the durable
// store.
func (n *Namespace[T]) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	n.removeLocked(key)
	n.mu.Unlock()
	if !n.cfg.Persistent || n.durable == nil {
		return nil
	}
	return n.durable.Delete(ctx, n.cfg.Name, key)
}

// Has reports whether key is live in memory right now.
func (n *Namespace[T]) Has(key string) bool {
	now := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.lru.peek(key)
	return ok && !entry.Expired(now)
}

// Clear empties memory and, when persistent, the durable store.
func (n *Namespace[T]) Clear(ctx context.Context) error {
	n.mu.Lock()
	n.lru.clear()
	n.bytes = 0
	n.mu.Unlock()
	if !n.cfg.Persistent || n.durable == nil {
		return nil
	}
	return n.durable.Clear(ctx, n.cfg.Name)
}

// CleanupExpired drops every expired memory entry.
func (n *Namespace[T]) CleanupExpired() int {
	now := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	var expired []string
	for _, k := range n.lru.keys() {
		if entry, ok := n.lru.peek(k); ok && entry.Expired(now) {
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		n.removeLocked(k)
	}
	return len(expired)
}

// Warmup loads keys from the durable store into memory, skipping any
// already resident or expired. A nil keys slice warms every durable key.
func (n *Namespace[T]) Warmup(ctx context.Context, keys ...string) error {
	if !n.cfg.Persistent || n.durable == nil {
		return nil
	}
	if keys == nil {
		all, err := n.durable.Keys(ctx, n.cfg.Name)
		if err != nil {
			return err
		}
		keys = all
	}
	recs, err := n.durable.BatchGet(ctx, n.cfg.Name, keys)
	if err != nil {
		return err
	}
	now := time.Now()
	for key, rec := range recs {
		if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
			continue
		}
		if n.Has(key) {
			continue
		}
		raw, err := maybeDecompress(rec.Value, rec.Compressed)
		if err != nil {
			continue
		}
		value, err := n.codec.Decode(raw)
		if err != nil {
			continue
		}
		n.mu.Lock()
		n.putLocked(key, CacheEntry[T]{Value: value, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt, Size: estimateSize(value)})
		n.evictLocked()
		n.mu.Unlock()
	}
	return nil
}

// Stats is a snapshot of a namespace's runtime counters.
type Stats struct {
	Items   int
	Bytes   int64
	ItemCap int
	ByteCap int64
	TTL     time.Duration
	HitRate float64
}

// Stats returns a snapshot of the namespace's current size and hit rate.
func (n *Namespace[T]) Stats() Stats {
	n.mu.Lock()
	items, bytes := n.lru.len(), n.bytes
	n.mu.Unlock()

	hits, misses := n.hits.Load(), n.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Items:   items,
		Bytes:   bytes,
		ItemCap: n.cfg.ItemCap,
		ByteCap: n.cfg.ByteCap,
		TTL:     n.cfg.TTL,
		HitRate: rate,
	}
}

// putLocked must be called with n.mu held.
func (n *Namespace[T]) putLocked(key string, entry CacheEntry[T]) {
	if old, ok := n.lru.peek(key); ok {
		n.bytes -= old.Size
	}
	n.lru.put(key, entry)
	n.bytes += entry.Size
}

// removeLocked must be called with n.mu held.
func (n *Namespace[T]) removeLocked(key string) {
	if entry, ok := n.lru.remove(key); ok {
		n.bytes -= entry.Size
	}
}

// evictLocked implements spec.md §4.4's eviction policy: item cap first,
// then byte cap, evicting least-recently-used entries. Eviction touches
// memory only — durable copies survive and can be re-hydrated by a later
// Get. Must be called with n.mu held.
func (n *Namespace[T]) evictLocked() {
	for n.cfg.ItemCap > 0 && n.lru.len() > n.cfg.ItemCap {
		_, entry, ok := n.lru.removeOldest()
		if !ok {
			break
		}
		n.bytes -= entry.Size
	}
	for n.cfg.ByteCap > 0 && n.bytes > n.cfg.ByteCap {
		_, entry, ok := n.lru.removeOldest()
		if !ok {
			break
		}
		n.bytes -= entry.Size
	}
}
