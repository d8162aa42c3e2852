package book

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/komareader/core/frame"
	"github.com/komareader/core/pages"
	"github.com/komareader/core/preload"
)

func testEntries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{Name: "page", Locator: "page.png", Width: 100, Height: 100}
	}
	return out
}

func testLoaders() preload.Loaders {
	return preload.Loaders{
		Image: func(ctx context.Context, vi int) ([]byte, error) {
			return []byte("image"), nil
		},
		Thumbnail: func(ctx context.Context, vi int) ([]byte, error) {
			return []byte("thumb"), nil
		},
	}
}

type recordingObserver struct {
	NoopObserver
	mu          sync.Mutex
	opened      []Info
	closed      int
	pageChanges []int
	rebuilt     int
}

func (r *recordingObserver) OnBookOpen(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, info)
}

func (r *recordingObserver) OnBookClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *recordingObserver) OnPageChange(idx int, f *frame.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageChanges = append(r.pageChanges, idx)
}

func (r *recordingObserver) OnPagesRebuilt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuilt++
}

func TestOpenBuildsFirstFrameAndEmitsOpen(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	obs := &recordingObserver{}
	c.Subscribe(obs)

	c.Open("book.cbz", testEntries(5), OpenOptions{})

	if c.CurrentIndex() != 0 {
		t.Fatalf("current index = %d, want 0", c.CurrentIndex())
	}
	if c.CurrentFrame() == nil {
		t.Fatal("expected a built frame after open")
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.opened) != 1 || obs.opened[0].PageCount != 5 {
		t.Fatalf("opened = %+v, want one Info with PageCount 5", obs.opened)
	}
}

func TestCloseEmitsCloseAndResetsState(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	obs := &recordingObserver{}
	c.Subscribe(obs)
	c.Open("book.cbz", testEntries(3), OpenOptions{})

	c.Close()

	if c.CurrentFrame() != nil {
		t.Error("expected nil frame after close")
	}
	if c.CurrentIndex() != -1 {
		t.Errorf("current index after close = %d, want -1", c.CurrentIndex())
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.closed != 1 {
		t.Errorf("closed count = %d, want 1", obs.closed)
	}
}

func TestGoToClampsAndEmitsPageChange(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	obs := &recordingObserver{}
	c.Subscribe(obs)
	c.Open("book.cbz", testEntries(5), OpenOptions{})

	c.GoTo(100)
	if c.CurrentIndex() != 4 {
		t.Errorf("index = %d, want clamped to 4", c.CurrentIndex())
	}

	c.GoTo(-50)
	if c.CurrentIndex() != 0 {
		t.Errorf("index = %d, want clamped to 0", c.CurrentIndex())
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.pageChanges) != 2 || obs.pageChanges[0] != 4 || obs.pageChanges[1] != 0 {
		t.Errorf("page changes = %v, want [4 0]", obs.pageChanges)
	}
}

func TestGoToIsIdempotent(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("book.cbz", testEntries(5), OpenOptions{})

	c.GoTo(2)
	f1 := c.CurrentFrame()
	c.GoTo(2)
	f2 := c.CurrentFrame()

	if f1 == nil || f2 == nil || f1.ID != f2.ID {
		t.Error("expected go_to(vi); go_to(vi) to be a no-op the second time")
	}
}

func TestNextFrameAndPrevFrameNavigate(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("book.cbz", testEntries(5), OpenOptions{})

	c.NextFrame()
	if c.CurrentIndex() != 1 {
		t.Fatalf("index after NextFrame = %d, want 1", c.CurrentIndex())
	}
	c.PrevFrame()
	if c.CurrentIndex() != 0 {
		t.Fatalf("index after PrevFrame = %d, want 0", c.CurrentIndex())
	}
}

func TestFirstAndLast(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("book.cbz", testEntries(5), OpenOptions{})

	c.Last()
	if c.CurrentIndex() != 4 {
		t.Fatalf("index after Last = %d, want 4", c.CurrentIndex())
	}
	c.First()
	if c.CurrentIndex() != 0 {
		t.Fatalf("index after First = %d, want 0", c.CurrentIndex())
	}
}

func TestOpenOnEmptyBookProducesNoFrame(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("empty.cbz", nil, OpenOptions{})

	if c.CurrentFrame() != nil {
		t.Error("expected nil frame for an empty book")
	}
	if c.CurrentIndex() != -1 {
		t.Errorf("index = %d, want -1 for empty book", c.CurrentIndex())
	}
}

func TestOpenSinglePageBookProducesOnePageFrame(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("single.cbz", testEntries(1), OpenOptions{})

	f := c.CurrentFrame()
	if f == nil || len(f.Elements) != 1 {
		t.Fatalf("expected a one-element frame, got %+v", f)
	}
}

func TestOnRebuildClampsAndRebuildsFrame(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	obs := &recordingObserver{}
	c.Subscribe(obs)
	c.Open("book.cbz", testEntries(5), OpenOptions{})
	c.GoTo(4)

	c.SetSearch("page") // every entry matches; rebuild still fires

	if c.CurrentFrame() == nil {
		t.Error("expected a frame to survive rebuild")
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.rebuilt == 0 {
		t.Error("expected at least one pages-rebuilt event")
	}
}

func TestRequestResolvesViaPipeline(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("book.cbz", testEntries(3), OpenOptions{})

	fut := c.Request(preload.KindImage, 0)
	if fut == nil {
		t.Fatal("expected a non-nil future")
	}
	res, err := fut.Wait(context.Background())
	if err != nil || res.Err != nil {
		t.Fatalf("wait failed: err=%v res.Err=%v", err, res.Err)
	}
	if string(res.Data) != "image" {
		t.Errorf("data = %q, want image", res.Data)
	}
}

func TestSetReadOrderUpdatesListAndBuilder(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	c.Open("book.cbz", testEntries(3), OpenOptions{})

	c.SetReadOrder("rtl")

	c.mu.Lock()
	cfg := c.list.Config()
	bcfg := c.builder.Config()
	c.mu.Unlock()

	if cfg.ReadOrder != pages.OrderRTL {
		t.Errorf("list read order = %v, want RTL", cfg.ReadOrder)
	}
	if bcfg.ReadOrder != pages.OrderRTL {
		t.Errorf("frame builder read order = %v, want RTL", bcfg.ReadOrder)
	}
}

func TestReopenClosesPreviousBook(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	obs := &recordingObserver{}
	c.Subscribe(obs)
	c.Open("first.cbz", testEntries(3), OpenOptions{})
	c.Open("second.cbz", testEntries(2), OpenOptions{})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.closed != 1 {
		t.Errorf("closed count across reopen = %d, want 1", obs.closed)
	}
	if len(obs.opened) != 2 {
		t.Errorf("opened count = %d, want 2", len(obs.opened))
	}
}

func TestMangaModeDefaultsToRTLTwoPage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MangaMode = true
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), cfg)
	c.Open("manga.cbz", testEntries(4), OpenOptions{})

	c.mu.Lock()
	listCfg := c.list.Config()
	frameCfg := c.builder.Config()
	c.mu.Unlock()

	if listCfg.ReadOrder != pages.OrderRTL {
		t.Error("expected manga mode to default read order to rtl")
	}
	if frameCfg.FramePageSize != 2 {
		t.Errorf("frame page size = %d, want 2 under manga mode", frameCfg.FramePageSize)
	}
}

func TestDebouncedFocusEventuallyFires(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	var mu sync.Mutex
	var lastFocus int
	c.Subscribe(&focusObserver{fn: func(f int) {
		mu.Lock()
		lastFocus = f
		mu.Unlock()
	}})
	c.Open("book.cbz", testEntries(10), OpenOptions{})

	c.GoTo(1)
	c.GoTo(2)
	c.GoTo(3)

	time.Sleep(debounceInterval * 3)

	mu.Lock()
	defer mu.Unlock()
	if lastFocus != 3 {
		t.Errorf("last debounced focus = %d, want 3 (the final navigation target)", lastFocus)
	}
}

type focusObserver struct {
	NoopObserver
	fn func(int)
}

func (o *focusObserver) OnPreloadFocusChange(focus int) { o.fn(focus) }

func TestLocatorResolvesVirtualToPhysical(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	entries := []Entry{
		{Name: "a", Locator: "a.png"},
		{Name: "b", Locator: "b.png"},
		{Name: "c", Locator: "c.png"},
	}
	c.Open("book.cbz", entries, OpenOptions{})

	loc, ok := c.Locator(1)
	if !ok || loc != "b.png" {
		t.Fatalf("Locator(1) = %q,%v want b.png,true", loc, ok)
	}

	if _, ok := c.Locator(99); ok {
		t.Error("expected Locator to fail for an out-of-range index")
	}
}

func TestLocatorFailsWhenUnopened(t *testing.T) {
	c := New(testLoaders(), preload.NewMemoryArtifactCache(), DefaultConfig())
	if _, ok := c.Locator(0); ok {
		t.Error("expected Locator to fail before Open")
	}
}
