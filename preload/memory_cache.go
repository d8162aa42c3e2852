package preload

import "sync"

// MemoryArtifactCache is a bare map-backed ArtifactCache with no eviction
// policy, namespace accounting or durability. It exists so the pipeline
// is independently testable without pulling in the full cache package;
// production callers wire cache.Cache instead.
type MemoryArtifactCache struct {
	mu   sync.RWMutex
	data map[Fingerprint][]byte
}

// NewMemoryArtifactCache returns an empty MemoryArtifactCache.
func NewMemoryArtifactCache() *MemoryArtifactCache {
	return &MemoryArtifactCache{data: make(map[Fingerprint][]byte)}
}

func (c *MemoryArtifactCache) Get(kind Kind, vi int) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.data[Fingerprint{Kind: kind, Index: vi}]
	return b, ok
}

func (c *MemoryArtifactCache) Set(kind Kind, vi int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[Fingerprint{Kind: kind, Index: vi}] = data
}

func (c *MemoryArtifactCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[Fingerprint][]byte)
}

func (c *MemoryArtifactCache) ClearKind(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp := range c.data {
		if fp.Kind == kind {
			delete(c.data, fp)
		}
	}
}
