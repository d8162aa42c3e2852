package frame

import (
	"sync"

	"github.com/komareader/core/pages"
)

// frameKey identifies a cached build by its requested (not normalized)
// position and direction, matching Design Note §9's explicit frame-cache
// key value type.
type frameKey struct {
	index     int
	part      int
	direction int
}

// maxCachedFrames bounds the frame cache: when it is full, the next
// insertion clears it wholesale first.
const maxCachedFrames = 256

// Builder produces Frames for a pages.List under a Config, caching results
// by (position, direction). It holds no ownership over the list; the Book
// Coordinator retains exclusive ownership per spec.md §3.
type Builder struct {
	mu     sync.Mutex
	list   *pages.List
	config Config
	cache  map[frameKey]*Frame
}

// NewBuilder returns a Builder reading from list under cfg.
func NewBuilder(list *pages.List, cfg Config) *Builder {
	return &Builder{list: list, config: cfg, cache: make(map[frameKey]*Frame)}
}

// SetConfig replaces the configuration and invalidates the frame cache
// wholesale, matching spec.md §9's "cache is invalidated wholesale on any
// configuration change that affects layout".
func (b *Builder) SetConfig(cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = cfg
	b.cache = make(map[frameKey]*Frame)
}

// Config returns a copy of the current configuration.
func (b *Builder) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config
}

// InvalidateAll clears the frame cache, e.g. in response to a rebuild
// event from the Virtual Page List.
func (b *Builder) InvalidateAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[frameKey]*Frame)
}

// Build produces the frame covering pos in direction, or nil if pos is out
// of range and looping is disabled.
func (b *Builder) Build(pos pages.PagePosition, direction int) *Frame {
	b.mu.Lock()
	cfg := b.config
	key := frameKey{index: pos.Index, part: pos.Part, direction: direction}
	if f, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return f
	}
	b.mu.Unlock()

	f := b.build(pos, direction, cfg)

	b.mu.Lock()
	if len(b.cache) >= maxCachedFrames {
		b.cache = make(map[frameKey]*Frame)
	}
	b.cache[key] = f
	b.mu.Unlock()
	return f
}

func (b *Builder) build(pos pages.PagePosition, direction int, cfg Config) *Frame {
	n := b.list.Length()
	idx := pos.Index
	if cfg.IsLoop {
		if n == 0 {
			return nil
		}
		idx = ((idx % n) + n) % n
	} else if idx < 0 || idx >= n {
		return nil
	}

	vp, ok := b.list.Get(idx)
	if !ok {
		return nil
	}

	first := b.buildElement(idx, vp)
	elems := []Element{first}

	if cfg.FramePageSize == 1 {
		return b.finalize(elems, direction, cfg)
	}

	if cfg.SupportWide && b.isLandscape(idx, vp) {
		return b.finalize(elems, direction, cfg)
	}
	if cfg.SingleFirst && idx == 0 {
		return b.finalize(elems, direction, cfg)
	}
	if cfg.SingleLast && idx == n-1 {
		return b.finalize(elems, direction, cfg)
	}

	neighborIdx, neighborOK := b.neighbor(idx, direction, cfg, n)
	if !neighborOK {
		if cfg.InsertDummy {
			dummy := first
			dummy.Dummy = true
			elems = b.orderPair(first, dummy, direction, cfg)
			return b.finalize(elems, direction, cfg)
		}
		return b.finalize(elems, direction, cfg)
	}

	neighborVP, ok := b.list.Get(neighborIdx)
	if !ok {
		return b.finalize(elems, direction, cfg)
	}
	if cfg.SupportWide && b.isLandscape(neighborIdx, neighborVP) {
		return b.finalize(elems, direction, cfg)
	}
	if cfg.SingleFirst && neighborIdx == 0 {
		return b.finalize(elems, direction, cfg)
	}
	if cfg.SingleLast && neighborIdx == n-1 {
		return b.finalize(elems, direction, cfg)
	}

	second := b.buildElement(neighborIdx, neighborVP)
	elems = b.orderPair(first, second, direction, cfg)
	return b.finalize(elems, direction, cfg)
}

// neighbor returns the probed next virtual index in direction, honoring
// loop wraparound, and whether it exists.
func (b *Builder) neighbor(idx, direction int, cfg Config, n int) (int, bool) {
	ni := idx + direction
	if cfg.IsLoop {
		if n == 0 {
			return 0, false
		}
		return ((ni % n) + n) % n, true
	}
	if ni < 0 || ni >= n {
		return 0, false
	}
	return ni, true
}

// orderPair orders two elements for the reading direction: ascending
// virtual index for ltr, descending for rtl, whichever of the two was
// built first.
func (b *Builder) orderPair(first, second Element, direction int, cfg Config) []Element {
	// first is always the position's own element (built from idx); second
	// is the probed neighbor in the navigation direction. For ltr these
	// are displayed in ascending virtual-index order; for rtl, descending.
	if first.VirtualIndex <= second.VirtualIndex {
		if cfg.ReadOrder == pages.OrderRTL {
			return []Element{second, first}
		}
		return []Element{first, second}
	}
	if cfg.ReadOrder == pages.OrderRTL {
		return []Element{first, second}
	}
	return []Element{second, first}
}

func (b *Builder) buildElement(vi int, vp pages.VirtualPage) Element {
	w, h := vp.Crop.W, vp.Crop.H
	if !vp.Divided {
		if phys, ok := b.list.Physical(vp.PhysicalIndex); ok {
			w, h = phys.Width, phys.Height
		}
	}
	return Element{
		VirtualIndex: vi,
		RawWidth:     w,
		RawHeight:    h,
		Scale:        1,
		Range:        cellRange(vi),
	}
}

func (b *Builder) isLandscape(vi int, vp pages.VirtualPage) bool {
	if vp.Divided {
		if vp.Crop.H <= 0 {
			return false
		}
		return float64(vp.Crop.W)/float64(vp.Crop.H) > 1
	}
	phys, ok := b.list.Physical(vp.PhysicalIndex)
	if !ok {
		return false
	}
	return phys.IsLandscape()
}

// finalize computes per-element scale/offset, composed size, the covered
// range and terminal bits, and assembles the Frame.
func (b *Builder) finalize(elems []Element, direction int, cfg Config) *Frame {
	maxH := 0
	for _, e := range elems {
		if e.RawHeight > maxH {
			maxH = e.RawHeight
		}
	}
	if maxH <= 0 {
		maxH = 1
	}

	var offset float64
	rng := pages.EmptyRange
	for i := range elems {
		e := &elems[i]
		if e.RawHeight > 0 {
			e.Scale = float64(maxH) / float64(e.RawHeight)
		} else {
			e.Scale = 1
		}
		e.OffsetX = offset
		offset += float64(e.RawWidth) * e.Scale
		if !e.Dummy {
			rng = pages.Union(rng, e.Range)
		}
	}
	if rng.IsEmpty() && len(elems) > 0 {
		rng = elems[0].Range
	}

	term := b.terminal(rng, cfg)

	return &Frame{
		ID:        newFrameID(),
		Elements:  elems,
		Range:     rng,
		Direction: direction,
		Width:     offset,
		Height:    float64(maxH),
		Terminal:  term,
	}
}

func (b *Builder) terminal(rng pages.PageRange, cfg Config) Terminal {
	if cfg.IsLoop {
		return TerminalNone
	}
	first := b.list.First()
	last := b.list.Last()
	var t Terminal
	if !first.IsNone() && rng.Min.Index <= first.Index && first.Index <= rng.Max.Index {
		t |= TerminalFirst
	}
	if !last.IsNone() && rng.Min.Index <= last.Index && last.Index <= rng.Max.Index {
		t |= TerminalLast
	}
	return t
}

// NextPosition implements the boundary-behavior formula from spec.md §8:
// stepping by one half-cell in direction, expressed over the generic
// (index*2+part) order space.
func NextPosition(r pages.PageRange, direction int) pages.PagePosition {
	if direction >= 0 {
		order := r.Max.Order() + 1
		return pages.PagePosition{Index: order / 2, Part: order % 2}
	}
	order := r.Min.Order() - 1
	if order < 0 {
		return pages.NoPosition
	}
	return pages.PagePosition{Index: order / 2, Part: order % 2}
}

// NextFrame builds the frame adjacent to current in direction.
func (b *Builder) NextFrame(current *Frame, direction int) *Frame {
	if current == nil {
		return nil
	}
	next := NextPosition(current.Range, direction)
	if next.IsNone() {
		return nil
	}
	return b.Build(next, direction)
}

// Sequence iterates NextFrame up to count times starting from Build(start,
// direction), stopping early on a nil frame.
func (b *Builder) Sequence(start pages.PagePosition, direction int, count int) []*Frame {
	out := make([]*Frame, 0, count)
	f := b.Build(start, direction)
	for i := 0; i < count && f != nil; i++ {
		out = append(out, f)
		f = b.NextFrame(f, direction)
	}
	return out
}
