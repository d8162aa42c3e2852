package cache

import (
	"context"
	"time"
)

// DurableRecord is the raw, already-(de)coded payload a DurableStore
// persists. Compressed is an opaque flag the store round-trips without
// interpreting; namespace decides when to compress and how to undo it.
type DurableRecord struct {
	Value      []byte
	Compressed bool
	CreatedAt  time.Time
	ExpiresAt  time.Time // zero means no expiry
}

// DurableStore is the interface every persistent backend implements,
// per spec.md §6. Implementations must check expiry on read and lazily
// delete stale rows.
type DurableStore interface {
	Get(ctx context.Context, namespace, key string) (DurableRecord, bool, error)
	Set(ctx context.Context, namespace, key string, rec DurableRecord) error
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Count(ctx context.Context, namespace string) (int, error)
	BatchGet(ctx context.Context, namespace string, keys []string) (map[string]DurableRecord, error)
	BatchSet(ctx context.Context, namespace string, recs map[string]DurableRecord) error
	CleanupExpired(ctx context.Context) (int, error)
	Close() error
}
