package preload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFuture(t *testing.T, f *Future) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("future did not resolve in time: %v", err)
	}
	return r
}

func countingImageLoader(calls *atomic.Int64) ImageLoader {
	return func(ctx context.Context, vi int) ([]byte, error) {
		calls.Add(1)
		return []byte(fmt.Sprintf("image-%d", vi)), nil
	}
}

func TestRequestCacheHitResolvesSynchronously(t *testing.T) {
	cache := NewMemoryArtifactCache()
	cache.Set(KindImage, 3, []byte("cached"))
	var calls atomic.Int64
	p := NewPipeline(Loaders{Image: countingImageLoader(&calls)}, cache, func() int { return 10 }, DefaultConfig())

	f := p.Request(KindImage, 3)
	if !f.Done() {
		t.Fatalf("expected cache hit to resolve a completed future immediately")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no loader call on cache hit, got %d", calls.Load())
	}
	r := waitFuture(t, f)
	if string(r.Data) != "cached" {
		t.Errorf("got %q, want %q", r.Data, "cached")
	}
}

func TestRequestLoadsAndCaches(t *testing.T) {
	cache := NewMemoryArtifactCache()
	var calls atomic.Int64
	p := NewPipeline(Loaders{Image: countingImageLoader(&calls)}, cache, func() int { return 10 }, DefaultConfig())

	f := p.Request(KindImage, 5)
	r := waitFuture(t, f)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if string(r.Data) != "image-5" {
		t.Errorf("got %q", r.Data)
	}
	if _, ok := cache.Get(KindImage, 5); !ok {
		t.Errorf("expected artifact to be cached after load")
	}
}

func TestConcurrentRequestsDedup(t *testing.T) {
	cache := NewMemoryArtifactCache()
	var calls atomic.Int64
	release := make(chan struct{})
	loader := func(ctx context.Context, vi int) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("once"), nil
	}
	p := NewPipeline(Loaders{Image: loader}, cache, func() int { return 10 }, DefaultConfig())

	f1 := p.Request(KindImage, 1)
	f2 := p.Request(KindImage, 1)

	time.Sleep(20 * time.Millisecond) // let the first request reach admission
	close(release)

	r1 := waitFuture(t, f1)
	r2 := waitFuture(t, f2)
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one loader invocation for duplicate requests, got %d", calls.Load())
	}
	if string(r1.Data) != string(r2.Data) {
		t.Errorf("expected both futures to resolve to the same result")
	}
}

func TestConcurrencyCapEnforced(t *testing.T) {
	cache := NewMemoryArtifactCache()
	var inFlight, maxInFlight atomic.Int64
	release := make(chan struct{})
	loader := func(ctx context.Context, vi int) ([]byte, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return []byte("x"), nil
	}
	cfg := DefaultConfig()
	cfg.Concurrency[KindImage] = 2
	p := NewPipeline(Loaders{Image: loader}, cache, func() int { return 20 }, cfg)

	var futures []*Future
	for vi := 0; vi < 6; vi++ {
		futures = append(futures, p.Request(KindImage, vi))
	}
	time.Sleep(50 * time.Millisecond)
	if got := maxInFlight.Load(); got > 2 {
		t.Fatalf("max concurrent loads = %d, want <= 2", got)
	}
	close(release)
	for _, f := range futures {
		waitFuture(t, f)
	}
}

func TestSetFocusWindowAndPriority(t *testing.T) {
	cache := NewMemoryArtifactCache()
	block := make(chan struct{})
	var started sync.Map
	loader := func(ctx context.Context, vi int) ([]byte, error) {
		started.Store(vi, true)
		<-block
		return []byte("i"), nil
	}
	cfg := DefaultConfig()
	cfg.Ahead = 1
	cfg.Behind = 1
	cfg.Concurrency[KindImage] = 10
	cfg.Concurrency[KindThumbnail] = 10
	p := NewPipeline(Loaders{Image: loader, Thumbnail: loader}, cache, func() int { return 10 }, cfg)

	p.SetFocus(5)
	time.Sleep(30 * time.Millisecond)

	for _, vi := range []int{4, 5, 6} {
		if _, ok := started.Load(vi); !ok {
			t.Errorf("expected vi=%d to be scheduled within the window", vi)
		}
	}
	if _, ok := started.Load(3); ok {
		t.Errorf("vi=3 should be outside the [4,6] window")
	}

	// Priority is distance from focus plus the kind offset (thumbnail +50).
	p.mu.Lock()
	for fp, want := range map[Fingerprint]int{
		{Kind: KindImage, Index: 5}:     0,
		{Kind: KindImage, Index: 4}:     1,
		{Kind: KindThumbnail, Index: 6}: 51,
	} {
		if task, ok := p.tasks[fp]; !ok || task.Priority != want {
			t.Errorf("priority of %s: got task %+v, want priority %d", fp, task, want)
		}
	}
	p.mu.Unlock()
	close(block)
}

func TestRecalculateCancelsOutOfWindowTasks(t *testing.T) {
	cache := NewMemoryArtifactCache()
	block := make(chan struct{})
	loader := func(ctx context.Context, vi int) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return []byte("i"), nil
		}
	}
	cfg := DefaultConfig()
	cfg.Ahead, cfg.Behind = 0, 0
	cfg.Concurrency[KindImage] = 10
	cfg.Concurrency[KindThumbnail] = 10
	p := NewPipeline(Loaders{Image: loader, Thumbnail: loader}, cache, func() int { return 10 }, cfg)

	fThumb := p.Request(KindThumbnail, 0) // lives outside any window until focus touches it
	p.SetFocus(0)
	time.Sleep(20 * time.Millisecond)
	p.SetFocus(9)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := fThumb.Wait(ctx)
	if err != nil {
		t.Fatalf("expected thumbnail task to resolve (cancelled), got timeout: %v", err)
	}
	if r.Err != ErrCancelled {
		t.Errorf("expected ErrCancelled once its fingerprint left the window, got %v", r.Err)
	}
	close(block)
}

func TestMissingLoaderError(t *testing.T) {
	cache := NewMemoryArtifactCache()
	p := NewPipeline(Loaders{}, cache, func() int { return 10 }, DefaultConfig())
	f := p.Request(KindImage, 0)
	r := waitFuture(t, f)
	if r.Err == nil {
		t.Fatal("expected an error when no image loader is configured")
	}
}

func TestClearCacheDefaultClearsAllKinds(t *testing.T) {
	cache := NewMemoryArtifactCache()
	cache.Set(KindImage, 1, []byte("i"))
	cache.Set(KindUpscale, 1, []byte("u"))
	p := NewPipeline(Loaders{}, cache, func() int { return 10 }, DefaultConfig())

	p.ClearCache()
	if _, ok := cache.Get(KindImage, 1); ok {
		t.Error("expected image entry cleared")
	}
	if _, ok := cache.Get(KindUpscale, 1); ok {
		t.Error("expected upscale entry cleared")
	}
}

func TestClearCacheByKind(t *testing.T) {
	cache := NewMemoryArtifactCache()
	cache.Set(KindImage, 1, []byte("i"))
	cache.Set(KindUpscale, 1, []byte("u"))
	p := NewPipeline(Loaders{}, cache, func() int { return 10 }, DefaultConfig())

	p.ClearCache(KindImage)
	if _, ok := cache.Get(KindImage, 1); ok {
		t.Error("expected image entry cleared")
	}
	if _, ok := cache.Get(KindUpscale, 1); !ok {
		t.Error("expected upscale entry to survive a kind-scoped clear")
	}
}

func TestPauseSuspendsAdmission(t *testing.T) {
	cache := NewMemoryArtifactCache()
	var calls atomic.Int64
	p := NewPipeline(Loaders{Image: countingImageLoader(&calls)}, cache, func() int { return 10 }, DefaultConfig())

	p.Pause()
	f := p.Request(KindImage, 0)
	time.Sleep(20 * time.Millisecond)
	if f.Done() {
		t.Fatal("task should not run while paused")
	}
	p.Resume()
	waitFuture(t, f)
}
