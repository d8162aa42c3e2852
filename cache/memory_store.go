package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process reference DurableStore implementation,
// used in tests and for namespaces that want durability semantics
// (survives eviction, not process restart) without an on-disk database.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]DurableRecord // namespace -> key -> record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]DurableRecord)}
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) (DurableRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[namespace][key]
	if !ok {
		return DurableRecord{}, false, nil
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		delete(m.data[namespace], key)
		return DurableRecord{}, false, nil
	}
	return rec, true, nil
}

func (m *MemoryStore) Set(_ context.Context, namespace, key string, rec DurableRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[namespace] == nil {
		m.data[namespace] = make(map[string]DurableRecord)
	}
	m.data[namespace][key] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[namespace], key)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, namespace string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data[namespace]))
	for k := range m.data[namespace] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryStore) Count(_ context.Context, namespace string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[namespace]), nil
}

func (m *MemoryStore) BatchGet(ctx context.Context, namespace string, keys []string) (map[string]DurableRecord, error) {
	out := make(map[string]DurableRecord, len(keys))
	for _, k := range keys {
		if rec, ok, _ := m.Get(ctx, namespace, k); ok {
			out[k] = rec
		}
	}
	return out, nil
}

func (m *MemoryStore) BatchSet(ctx context.Context, namespace string, recs map[string]DurableRecord) error {
	for k, rec := range recs {
		if err := m.Set(ctx, namespace, k, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for ns, entries := range m.data {
		for k, rec := range entries {
			if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
				delete(entries, k)
				removed++
			}
		}
		_ = ns
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }
