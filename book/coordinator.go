package book

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/komareader/core/cache"
	"github.com/komareader/core/frame"
	"github.com/komareader/core/pages"
	"github.com/komareader/core/preload"
)

// debounceInterval coalesces a burst of navigation calls (e.g. a held
// arrow key) into one preload-focus recalculation, per SPEC_FULL.md
// §4.5. It never delays the navigated position itself — only the
// preload window recompute that follows it.
const debounceInterval = 40 * time.Millisecond

// Coordinator is the Book Coordinator of spec.md §4.5: it owns a
// pages.List, a frame.Builder and a preload.Pipeline for one open book
// and multiplexes their state into one navigation/configuration/event
// surface.
type Coordinator struct {
	loaders preload.Loaders
	store   preload.ArtifactCache

	mu      sync.Mutex
	cfg     Config
	list    *pages.List
	builder *frame.Builder
	pipe    *preload.Pipeline

	info      Info
	opened    bool
	current   pages.PagePosition
	direction int
	curFrame  *frame.Frame

	observers []Observer

	debounced    func(func())
	pendingFocus int
}

// New returns an unopened Coordinator wired to loaders and an artifact
// store (ordinarily a *cache.Cache; see cache.NewCache).
func New(loaders preload.Loaders, store preload.ArtifactCache, cfg Config) *Coordinator {
	return &Coordinator{
		loaders:   loaders,
		store:     store,
		cfg:       cfg,
		current:   pages.NoPosition,
		debounced: debounce.New(debounceInterval),
	}
}

// Subscribe registers an Observer. Not safe to call concurrently with
// Open/Close.
func (c *Coordinator) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Coordinator) emit(fn func(Observer)) {
	c.mu.Lock()
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()
	for _, o := range obs {
		fn(o)
	}
}

// Open closes any current book, builds physical pages from entries, and
// opens the new one at opts.StartIndex (clamped).
func (c *Coordinator) Open(locator string, entries []Entry, opts OpenOptions) {
	c.Close()

	cfg := c.cfg.withMangaDefaults()

	c.mu.Lock()
	c.list = pages.New()
	c.list.SetConfig(cfg.pagesConfig())
	c.builder = frame.NewBuilder(c.list, cfg.frameConfig())
	c.pipe = preload.NewPipeline(c.loaders, c.store, c.list.Length, cfg.preloadConfig())
	c.pipe.OnTaskStart = func(t preload.Task) {
		c.emit(func(o Observer) { o.OnPreloadTaskStart(t) })
	}
	c.pipe.OnTaskComplete = func(fp preload.Fingerprint, r preload.Result) {
		c.emit(func(o Observer) { o.OnPreloadTaskComplete(fp, r) })
	}
	c.pipe.OnQueueChange = func(size int) {
		c.emit(func(o Observer) { o.OnPreloadQueueChange(size) })
	}

	raw := make([]pages.PhysicalPage, len(entries))
	for i, e := range entries {
		p := pages.NewPhysicalPage(i, e.Name, e.Locator)
		p.Width, p.Height = e.Width, e.Height
		p.ModTime, p.FileSize, p.Kind = e.ModTime, e.FileSize, e.Kind
		raw[i] = p
	}
	c.list.SetPhysical(raw)
	// Wired after the initial SetPhysical: onRebuild takes c.mu, which is
	// still held here.
	c.list.OnRebuild = c.onRebuild

	c.info = Info{Locator: locator, PageCount: c.list.Length(), IsArchive: opts.IsArchive, OpenedAt: now()}
	c.opened = true
	start := c.list.Clamp(opts.StartIndex)
	pos := c.positionFor(start)
	c.current = pos
	c.direction = 1
	store := c.store
	c.mu.Unlock()

	go warmNamespace(context.Background(), store)

	c.rebuildFrameAndFocus()
	c.emit(func(o Observer) { o.OnBookOpen(c.info) })
}

// Close cancels all preload tasks, clears the image and upscale caches,
// drops the frame builder (and with it the frame cache), and resets
// state. Per DESIGN.md's Open Question decision the thumbnail cache is
// left as it is, in both its memory and durable tiers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	wasOpened := c.opened
	pipe := c.pipe
	c.opened = false
	c.list = nil
	c.builder = nil
	c.pipe = nil
	c.current = pages.NoPosition
	c.curFrame = nil
	c.mu.Unlock()

	if pipe != nil {
		pipe.Close()
		pipe.ClearCache(preload.KindImage)
		pipe.ClearCache(preload.KindUpscale)
	}
	if wasOpened {
		c.emit(func(o Observer) { o.OnBookClose() })
	}
}

// onRebuild is pages.List's OnRebuild callback: clear the frame cache,
// clamp the current index, rebuild the current frame, reset preload
// focus, and emit pages-rebuilt + page-change, per spec.md §4.5.
func (c *Coordinator) onRebuild(uint64) {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return
	}
	c.builder.InvalidateAll()
	clamped := c.list.Clamp(c.current.Index)
	c.current = c.positionFor(clamped)
	c.mu.Unlock()

	c.rebuildFrameAndFocus()
	c.emit(func(o Observer) { o.OnPagesRebuilt() })
	c.emitPageChange()
}

func (c *Coordinator) positionFor(vi int) pages.PagePosition {
	vp, ok := c.list.Get(vi)
	if !ok {
		return pages.NoPosition
	}
	return pages.PagePosition{Index: vi, Part: vp.Part}
}

// rebuildFrameAndFocus builds the current frame synchronously and
// schedules a (possibly debounced) preload focus update.
func (c *Coordinator) rebuildFrameAndFocus() {
	c.mu.Lock()
	if !c.opened || c.current.IsNone() {
		c.mu.Unlock()
		return
	}
	builder, pos, dir := c.builder, c.current, c.direction
	c.mu.Unlock()

	f := builder.Build(pos, dir)

	c.mu.Lock()
	c.curFrame = f
	c.mu.Unlock()

	c.scheduleFocus(pos.Index)
}

// scheduleFocus records vi as the latest desired preload focus and runs
// the actual Pipeline.SetFocus through the debounce wrapper, so a burst
// of navigation calls results in one recalculation using only the final
// focus.
func (c *Coordinator) scheduleFocus(vi int) {
	c.mu.Lock()
	c.pendingFocus = vi
	pipe := c.pipe
	c.mu.Unlock()

	c.debounced(func() {
		c.mu.Lock()
		focus := c.pendingFocus
		c.mu.Unlock()
		if pipe != nil {
			pipe.SetFocus(focus)
		}
		c.emit(func(o Observer) { o.OnPreloadFocusChange(focus) })
	})
}

func (c *Coordinator) emitPageChange() {
	c.mu.Lock()
	idx, f := c.current.Index, c.curFrame
	opened := c.opened
	c.mu.Unlock()
	if !opened {
		return
	}
	c.emit(func(o Observer) { o.OnPageChange(idx, f) })
}

// CurrentFrame returns the most recently built frame, or nil.
func (c *Coordinator) CurrentFrame() *frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curFrame
}

// CurrentIndex returns the current virtual index, or -1 if no book is
// open or the book is empty.
func (c *Coordinator) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Index
}

// Info returns the currently open book's Info.
func (c *Coordinator) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// navigateTo moves to vi with direction sign dir, rebuilding the current
// frame and preload focus, then emits page-change. Idempotent when vi is
// already the current index.
func (c *Coordinator) navigateTo(vi, dir int) {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return
	}
	clamped := c.list.Clamp(vi)
	if clamped == c.current.Index {
		c.mu.Unlock()
		return
	}
	c.current = c.positionFor(clamped)
	if dir != 0 {
		c.direction = sign(dir)
	}
	c.mu.Unlock()

	c.rebuildFrameAndFocus()
	c.emitPageChange()
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}

// GoTo navigates directly to virtual index vi.
func (c *Coordinator) GoTo(vi int) {
	c.mu.Lock()
	dir := vi - c.current.Index
	c.mu.Unlock()
	c.navigateTo(vi, dir)
}

// NextFrame advances to the frame following the current one in the
// forward direction.
func (c *Coordinator) NextFrame() {
	c.mu.Lock()
	builder, f := c.builder, c.curFrame
	c.mu.Unlock()
	if builder == nil {
		return
	}
	next := builder.NextFrame(f, 1)
	if next == nil {
		return
	}
	c.navigateTo(next.Range.Min.Index, 1)
}

// PrevFrame moves to the frame preceding the current one in the backward
// direction.
func (c *Coordinator) PrevFrame() {
	c.mu.Lock()
	builder, f := c.builder, c.curFrame
	c.mu.Unlock()
	if builder == nil {
		return
	}
	prev := builder.NextFrame(f, -1)
	if prev == nil {
		return
	}
	c.navigateTo(prev.Range.Min.Index, -1)
}

// First navigates to the first page of the book.
func (c *Coordinator) First() {
	c.navigateTo(0, -1)
}

// Last navigates to the last page of the book.
func (c *Coordinator) Last() {
	c.mu.Lock()
	list := c.list
	c.mu.Unlock()
	if list == nil {
		return
	}
	c.navigateTo(list.Length()-1, 1)
}

// NextFolder jumps to the first page of the next folder, if any.
func (c *Coordinator) NextFolder() {
	c.mu.Lock()
	list, idx := c.list, c.current.Index
	c.mu.Unlock()
	if list == nil {
		return
	}
	ni := list.NextFolderIndex(idx)
	if ni < 0 {
		return
	}
	c.navigateTo(ni, 1)
}

// PrevFolder jumps to the first page of the preceding folder, if any.
func (c *Coordinator) PrevFolder() {
	c.mu.Lock()
	list, idx := c.list, c.current.Index
	c.mu.Unlock()
	if list == nil {
		return
	}
	pi := list.PrevFolderIndex(idx)
	if pi < 0 {
		return
	}
	c.navigateTo(pi, -1)
}

// SetSplitLandscape is a settings passthrough to the Virtual Page List.
func (c *Coordinator) SetSplitLandscape(enabled bool) {
	c.mu.Lock()
	c.cfg.DivideLandscape = enabled
	cfg := c.cfg
	list := c.list
	c.mu.Unlock()
	if list != nil {
		list.SetConfig(cfg.pagesConfig())
	}
}

// SetPageMode is a settings passthrough ("single" or "wide").
func (c *Coordinator) SetPageMode(mode string) {
	c.mu.Lock()
	c.cfg.PageMode = mode
	cfg := c.cfg
	list := c.list
	c.mu.Unlock()
	if list != nil {
		list.SetConfig(cfg.pagesConfig())
	}
}

// SetReadOrder is a settings passthrough ("ltr" or "rtl").
func (c *Coordinator) SetReadOrder(order string) {
	c.mu.Lock()
	c.cfg.ReadOrder = order
	cfg := c.cfg
	list, builder := c.list, c.builder
	c.mu.Unlock()
	if list != nil {
		list.SetConfig(cfg.pagesConfig())
	}
	if builder != nil {
		builder.SetConfig(cfg.frameConfig())
	}
}

// SetSortMode is a settings passthrough to the Virtual Page List.
func (c *Coordinator) SetSortMode(mode pages.SortMode, seed ...uint32) {
	c.mu.Lock()
	list := c.list
	c.mu.Unlock()
	if list != nil {
		list.SetSortMode(mode, seed...)
	}
}

// SetSearch is a settings passthrough: the case-insensitive keyword
// filter applied by the Virtual Page List.
func (c *Coordinator) SetSearch(keyword string) {
	c.mu.Lock()
	list := c.list
	c.mu.Unlock()
	if list != nil {
		list.SetSearch(keyword)
	}
}

// SetFramePageSize is a settings passthrough to the Page Frame Builder.
func (c *Coordinator) SetFramePageSize(size int) {
	c.mu.Lock()
	c.cfg.FramePageSize = size
	cfg := c.cfg
	builder := c.builder
	c.mu.Unlock()
	if builder != nil {
		builder.SetConfig(cfg.frameConfig())
	}
	c.rebuildFrameAndFocus()
}

// SetAutoUpscale is a thin passthrough letting a host process flip
// auto-upscale at runtime without rebuilding the pipeline (SPEC_FULL.md
// §10's battery/low-memory hook).
func (c *Coordinator) SetAutoUpscale(enabled bool) {
	c.mu.Lock()
	c.cfg.AutoUpscale = enabled
	pipe := c.pipe
	pcfg := c.cfg.preloadConfig()
	c.mu.Unlock()
	if pipe != nil {
		pipe.SetConfig(pcfg)
	}
}

// Request asks for one artifact, returning a Future the caller can Wait
// on. kind/vi identify the fingerprint; an explicit priority only ever
// lowers (improves) an existing task's priority.
func (c *Coordinator) Request(kind preload.Kind, vi int, priority ...int) *preload.Future {
	c.mu.Lock()
	pipe := c.pipe
	c.mu.Unlock()
	if pipe == nil {
		return nil
	}
	return pipe.Request(kind, vi, priority...)
}

// CachedArtifact returns a previously cached artifact by fingerprint
// without triggering a load.
func (c *Coordinator) CachedArtifact(kind preload.Kind, vi int) ([]byte, bool) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return nil, false
	}
	return store.Get(kind, vi)
}

// UpdateSize feeds a decoded image's natural size back into the Virtual
// Page List, which may trigger a rebuild if split-landscape
// classification crossed the threshold.
func (c *Coordinator) UpdateSize(physicalIndex, w, h int) {
	c.mu.Lock()
	list := c.list
	c.mu.Unlock()
	if list != nil {
		list.UpdateSize(physicalIndex, w, h)
	}
}

// Locator resolves a virtual index back to the physical entry's locator
// passed to Open, for host code (loaders, UI) that needs the underlying
// source path or archive member name rather than the virtual index
// itself.
func (c *Coordinator) Locator(vi int) (string, bool) {
	c.mu.Lock()
	list := c.list
	c.mu.Unlock()
	if list == nil {
		return "", false
	}
	pi, ok := list.ToPhysical(vi)
	if !ok {
		return "", false
	}
	pp, ok := list.Physical(pi)
	if !ok {
		return "", false
	}
	return pp.Locator, true
}

var nowFunc = time.Now

func now() time.Time { return nowFunc() }

// warmNamespace, if store is a *cache.Cache, warms every namespace from
// its durable tier at Open time. Hosts not using cache.Cache (e.g. a
// bare preload.MemoryArtifactCache in tests) simply skip this.
func warmNamespace(ctx context.Context, store preload.ArtifactCache) {
	c, ok := store.(*cache.Cache)
	if !ok {
		return
	}
	for _, k := range []preload.Kind{preload.KindImage, preload.KindThumbnail, preload.KindUpscale} {
		if ns := c.Namespace(k); ns != nil {
			_ = ns.Warmup(ctx)
		}
	}
}
