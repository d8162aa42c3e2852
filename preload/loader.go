package preload

import (
	"context"
	"fmt"
)

// ImageLoader loads the full-resolution image bytes for a virtual index.
type ImageLoader func(ctx context.Context, vi int) ([]byte, error)

// ThumbnailLoader loads a thumbnail's bytes for a virtual index.
type ThumbnailLoader func(ctx context.Context, vi int) ([]byte, error)

// Upscaler transforms previously-loaded image bytes into an upscaled
// version.
type Upscaler func(ctx context.Context, image []byte) ([]byte, error)

// Loaders bundles the injected loader functions. A nil field means that
// kind is unsupported; requesting it fails with errLoaderMissing.
type Loaders struct {
	Image     ImageLoader
	Thumbnail ThumbnailLoader
	Upscale   Upscaler
}

type errLoaderMissing struct{ kind Kind }

func (e *errLoaderMissing) Error() string {
	return fmt.Sprintf("preload: no loader configured for kind %s", e.kind)
}

// ArtifactCache is the narrow read/write contract the pipeline needs from
// a cache implementation. cache.Cache satisfies it; a bare in-memory map
// does too (see MemoryArtifactCache), which is what the pipeline's own
// tests use.
type ArtifactCache interface {
	Get(kind Kind, vi int) ([]byte, bool)
	Set(kind Kind, vi int, data []byte)
	ClearAll()
	ClearKind(kind Kind)
}
