package pages

import (
	"strings"
	"sync"
	"sync/atomic"
)

// snapshot is the immutable result of one rebuild. Readers load it
// atomically; writers build a brand-new snapshot and swap it in, so no
// reader ever observes a partially rebuilt list. Grounded on the
// atomic-counter / lock-free-read discipline used throughout the teacher's
// internal/storage/bufferpool.go and concurrency.go.
type snapshot struct {
	virtual           []VirtualPage
	virtualToPhysical []int         // virtual index -> PhysicalPage.Index
	physicalToVirtual map[int][]int // PhysicalPage.Index -> virtual indices
	generation        uint64
}

var emptySnapshot = &snapshot{physicalToVirtual: map[int][]int{}}

// List is the Virtual Page List of spec.md §4.1.
type List struct {
	mu sync.Mutex // serializes all writers: set_*, update_size, rebuild

	raw     []PhysicalPage
	byIndex map[int]int // PhysicalPage.Index -> position in raw

	config   Config
	sortMode SortMode
	seed     uint32
	keyword  string

	snap atomic.Pointer[snapshot]

	// OnRebuild, when set, is invoked after every rebuild (outside the
	// lock) with the new generation number.
	OnRebuild func(generation uint64)
}

// New returns an empty Virtual Page List with default configuration.
func New() *List {
	l := &List{config: DefaultConfig()}
	l.snap.Store(emptySnapshot)
	return l
}

// SetPhysical replaces the physical vector wholesale and rebuilds.
func (l *List) SetPhysical(raw []PhysicalPage) {
	l.mu.Lock()
	l.raw = append([]PhysicalPage(nil), raw...)
	l.byIndex = make(map[int]int, len(l.raw))
	for i, p := range l.raw {
		l.byIndex[p.Index] = i
	}
	l.rebuildLocked()
}

// UpdateSize updates a physical page's natural size, recomputing its
// aspect ratio and landscape classification. It only triggers a rebuild
// when the page's classification against the split threshold crossed and
// split-landscape is enabled.
func (l *List) UpdateSize(physicalIndex, w, h int) {
	l.UpdateSizeBatch([]SizeUpdate{{Index: physicalIndex, Width: w, Height: h}})
}

// SizeUpdate is one entry of a UpdateSizeBatch call.
type SizeUpdate struct {
	Index         int
	Width, Height int
}

// UpdateSizeBatch applies many size updates at once, rebuilding at most
// once regardless of how many updates crossed the split threshold.
func (l *List) UpdateSizeBatch(updates []SizeUpdate) {
	l.mu.Lock()
	crossed := false
	for _, u := range updates {
		pos, ok := l.byIndex[u.Index]
		if !ok {
			continue
		}
		old := l.raw[pos]
		oldSplit := l.splitsAt(old)
		l.raw[pos].Width = u.Width
		l.raw[pos].Height = u.Height
		newSplit := l.splitsAt(l.raw[pos])
		if oldSplit != newSplit {
			crossed = true
		}
	}
	if !crossed {
		l.mu.Unlock()
		return
	}
	l.rebuildLocked()
}

// splitsAt reports whether p would be divided under the current config.
func (l *List) splitsAt(p PhysicalPage) bool {
	return l.config.PageMode == ModeSingle && l.config.SplitLandscape && p.AspectRatio() > l.config.SplitThreshold
}

// SetSortMode selects the comparator used by future rebuilds. seed is only
// meaningful for SortRandom; if omitted, the previously stored seed is
// reused (see DESIGN.md for the reproducibility decision).
func (l *List) SetSortMode(mode SortMode, seed ...uint32) {
	l.mu.Lock()
	changed := mode != l.sortMode
	l.sortMode = mode
	if len(seed) > 0 {
		if seed[0] != l.seed {
			changed = true
		}
		l.seed = seed[0]
	}
	if !changed {
		l.mu.Unlock()
		return
	}
	l.rebuildLocked()
}

// SetSearch sets the case-insensitive keyword filter.
func (l *List) SetSearch(keyword string) {
	l.mu.Lock()
	if keyword == l.keyword {
		l.mu.Unlock()
		return
	}
	l.keyword = keyword
	l.rebuildLocked()
}

// SetConfig replaces the whole current configuration with cfg, rebuilding
// only if a layout-affecting knob actually changed. Fields are not merged:
// a field left at its zero value in cfg is applied as that zero value.
func (l *List) SetConfig(cfg Config) {
	l.mu.Lock()
	if !l.config.affectsLayout(cfg) {
		l.mu.Unlock()
		return
	}
	l.config = cfg
	l.rebuildLocked()
}

// Config returns a copy of the current configuration.
func (l *List) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// rebuildLocked must be called with l.mu held; it releases l.mu before
// returning (and before invoking OnRebuild).
func (l *List) rebuildLocked() {
	filtered := make([]PhysicalPage, 0, len(l.raw))
	for _, p := range l.raw {
		if p.Deleted() {
			continue
		}
		if matchesKeyword(p, l.keyword) {
			filtered = append(filtered, p)
		}
	}
	sorted := sortPhysical(filtered, l.sortMode, l.seed)

	virtual := make([]VirtualPage, 0, len(sorted)+len(sorted)/2)
	physicalToVirtual := make(map[int][]int, len(sorted))

	for _, p := range sorted {
		if l.splitsAt(p) {
			half := p.Width / 2
			leftCrop := CropRect{X: 0, Y: 0, W: half, H: p.Height}
			rightCrop := CropRect{X: half, Y: 0, W: p.Width - half, H: p.Height}
			first := VirtualPage{PhysicalIndex: p.Index, Part: 0, Divided: true, Crop: leftCrop}
			second := VirtualPage{PhysicalIndex: p.Index, Part: 1, Divided: true, Crop: rightCrop}
			if l.config.ReadOrder == OrderRTL {
				first, second = second, first
			}
			first.Index = len(virtual)
			virtual = append(virtual, first)
			physicalToVirtual[p.Index] = append(physicalToVirtual[p.Index], first.Index)
			second.Index = len(virtual)
			virtual = append(virtual, second)
			physicalToVirtual[p.Index] = append(physicalToVirtual[p.Index], second.Index)
		} else {
			vp := VirtualPage{Index: len(virtual), PhysicalIndex: p.Index, Part: 0}
			virtual = append(virtual, vp)
			physicalToVirtual[p.Index] = append(physicalToVirtual[p.Index], vp.Index)
		}
	}

	virtualToPhysical := make([]int, len(virtual))
	for i, vp := range virtual {
		virtualToPhysical[i] = vp.PhysicalIndex
	}

	prev := l.snap.Load()
	next := &snapshot{
		virtual:           virtual,
		virtualToPhysical: virtualToPhysical,
		physicalToVirtual: physicalToVirtual,
		generation:        prev.generation + 1,
	}
	l.snap.Store(next)
	cb := l.OnRebuild
	l.mu.Unlock()

	if cb != nil {
		cb(next.generation)
	}
}

// Length returns the number of virtual pages.
func (l *List) Length() int {
	return len(l.snap.Load().virtual)
}

// Generation returns the current rebuild generation counter.
func (l *List) Generation() uint64 {
	return l.snap.Load().generation
}

// Get returns the virtual page at vi, or false if vi is out of range.
func (l *List) Get(vi int) (VirtualPage, bool) {
	s := l.snap.Load()
	if vi < 0 || vi >= len(s.virtual) {
		return VirtualPage{}, false
	}
	return s.virtual[vi], true
}

// Physical returns a copy of the raw physical page identified by its
// stable Index, regardless of whether it currently survives filtering.
func (l *List) Physical(physicalIndex int) (PhysicalPage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.byIndex[physicalIndex]
	if !ok {
		return PhysicalPage{}, false
	}
	return l.raw[pos], true
}

// ToPhysical returns the physical index backing vi.
func (l *List) ToPhysical(vi int) (int, bool) {
	s := l.snap.Load()
	if vi < 0 || vi >= len(s.virtualToPhysical) {
		return -1, false
	}
	return s.virtualToPhysical[vi], true
}

// ToVirtuals returns every virtual index backed by the given physical
// index, in ascending order. It returns nil if the physical page produced
// no surviving virtual pages (filtered out or unknown).
func (l *List) ToVirtuals(physicalIndex int) []int {
	s := l.snap.Load()
	return append([]int(nil), s.physicalToVirtual[physicalIndex]...)
}

// RangeSlice returns the virtual pages in [min, max], clipped to bounds.
func (l *List) RangeSlice(min, max int) []VirtualPage {
	s := l.snap.Load()
	if min < 0 {
		min = 0
	}
	if max >= len(s.virtual) {
		max = len(s.virtual) - 1
	}
	if min > max {
		return nil
	}
	out := make([]VirtualPage, max-min+1)
	copy(out, s.virtual[min:max+1])
	return out
}

// IsValid reports whether vi addresses a live virtual page.
func (l *List) IsValid(vi int) bool {
	s := l.snap.Load()
	return vi >= 0 && vi < len(s.virtual)
}

// Clamp folds vi into [0, length). On an empty list it returns 0.
func (l *List) Clamp(vi int) int {
	n := l.Length()
	if n == 0 {
		return 0
	}
	if vi < 0 {
		return 0
	}
	if vi >= n {
		return n - 1
	}
	return vi
}

// First returns the first position of the list, or the sentinel if empty.
func (l *List) First() PagePosition {
	if l.Length() == 0 {
		return NoPosition
	}
	vp, _ := l.Get(0)
	return PagePosition{Index: 0, Part: vp.Part}
}

// Last returns the last position of the list, or the sentinel if empty.
func (l *List) Last() PagePosition {
	n := l.Length()
	if n == 0 {
		return NoPosition
	}
	vp, _ := l.Get(n - 1)
	return PagePosition{Index: n - 1, Part: vp.Part}
}

// folderOf returns everything before the last path separator of the
// physical page's locator backing vi.
func (l *List) folderOf(vi int) (string, bool) {
	pi, ok := l.ToPhysical(vi)
	if !ok {
		return "", false
	}
	p, ok := l.Physical(pi)
	if !ok {
		return "", false
	}
	return folderName(p.Locator), true
}

func folderName(locator string) string {
	i := strings.LastIndexAny(locator, "/\\")
	if i < 0 {
		return ""
	}
	return locator[:i]
}

// NextFolderIndex returns the first virtual index after vi whose physical
// page belongs to a different folder, or -1 if none.
func (l *List) NextFolderIndex(vi int) int {
	cur, ok := l.folderOf(vi)
	if !ok {
		return -1
	}
	n := l.Length()
	for i := vi + 1; i < n; i++ {
		f, ok := l.folderOf(i)
		if ok && f != cur {
			return i
		}
	}
	return -1
}

// PrevFolderIndex returns the first virtual index of the folder preceding
// vi's folder, or -1 if vi's folder is already the first.
func (l *List) PrevFolderIndex(vi int) int {
	cur, ok := l.folderOf(vi)
	if !ok {
		return -1
	}
	i := vi
	for i > 0 {
		f, ok := l.folderOf(i - 1)
		if !ok || f != cur {
			break
		}
		i--
	}
	if i == 0 {
		return -1
	}
	prevFolder, _ := l.folderOf(i - 1)
	j := i - 1
	for j > 0 {
		f, ok := l.folderOf(j - 1)
		if !ok || f != prevFolder {
			break
		}
		j--
	}
	return j
}
