// Package pages implements the Virtual Page List: it turns an ordered slice
// of PhysicalPage into an ordered, sortable, filterable, splittable slice of
// VirtualPage, and keeps bidirectional physical<->virtual index maps.
//
// What: a pure, in-memory transform with no I/O of its own.
// How: filter -> sort -> split-emit -> reindex, published as one immutable
// snapshot per rebuild so concurrent readers never observe a half-built
// list.
// Why: the renderer, the frame builder and the preload pipeline all read
// this list on hot paths; a snapshot swap keeps those reads lock-free.
package pages

import (
	"time"

	"github.com/google/uuid"

	"github.com/komareader/core/internal/ids"
)

// PageKind tags the origin of a PhysicalPage.
type PageKind int

const (
	KindImage PageKind = iota
	KindFolderCover
	KindArchiveCover
	KindVideo
)

// PhysicalPage is one source image entry in the book.
type PhysicalPage struct {
	ID uuid.UUID

	// Index is the stable, non-negative index within the book as supplied
	// by the caller of SetPhysical.
	Index int

	EntryName string
	Locator   string

	Width  int
	Height int

	ModTime  time.Time
	FileSize int64
	Kind     PageKind

	// Tombstone is zero while the page is live, and the UnixNano timestamp
	// of deletion once it isn't. Mirrors the teacher's MVCC DeletedAt field.
	Tombstone int64
}

// NewPhysicalPage builds a PhysicalPage with a freshly minted id.
func NewPhysicalPage(index int, entryName, locator string) PhysicalPage {
	return PhysicalPage{
		ID:        ids.New(),
		Index:     index,
		EntryName: entryName,
		Locator:   locator,
	}
}

// AspectRatio returns width/height, or 1 when height is unknown (zero).
func (p PhysicalPage) AspectRatio() float64 {
	if p.Height <= 0 {
		return 1
	}
	return float64(p.Width) / float64(p.Height)
}

// IsLandscape reports whether the page's aspect ratio exceeds 1.
func (p PhysicalPage) IsLandscape() bool {
	return p.AspectRatio() > 1
}

// Deleted reports whether the page carries a tombstone.
func (p PhysicalPage) Deleted() bool {
	return p.Tombstone != 0
}

// CropRect is a half-width, full-height crop of a physical page.
type CropRect struct {
	X, Y, W, H int
}

// VirtualPage is a display-oriented unit: a whole physical page, or one
// half of a divided landscape physical page.
type VirtualPage struct {
	Index int

	// PhysicalIndex is the owning PhysicalPage's Index field (not its
	// position in the slice passed to SetPhysical, and not the virtual
	// index).
	PhysicalIndex int

	Part int // 0 or 1

	Divided bool
	Crop    CropRect // valid only when Divided
}

// PagePosition is a (virtual index, part) pair with a total order.
type PagePosition struct {
	Index int
	Part  int
}

// NoPosition is the sentinel empty position.
var NoPosition = PagePosition{Index: -1, Part: 0}

// IsNone reports whether p is the sentinel position.
func (p PagePosition) IsNone() bool {
	return p.Index < 0
}

// Order returns index*2+part, the total order used to compare positions.
func (p PagePosition) Order() int {
	return p.Index*2 + p.Part
}

// Less reports whether p sorts before o.
func (p PagePosition) Less(o PagePosition) bool {
	return p.Order() < o.Order()
}

// PageRange is an inclusive [Min, Max] range of PagePositions.
type PageRange struct {
	Min, Max PagePosition
}

// EmptyRange is the sentinel empty range.
var EmptyRange = PageRange{Min: NoPosition, Max: NoPosition}

// IsEmpty reports whether either bound is the sentinel position.
func (r PageRange) IsEmpty() bool {
	return r.Min.IsNone() || r.Max.IsNone()
}

// Contains reports whether pos lies within [Min, Max].
func (r PageRange) Contains(pos PagePosition) bool {
	if r.IsEmpty() {
		return false
	}
	return !pos.Less(r.Min) && !r.Max.Less(pos)
}

// Union returns the smallest range covering both a and b. Either argument
// may be empty, in which case the other is returned unchanged.
func Union(a, b PageRange) PageRange {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	min, max := a.Min, a.Max
	if b.Min.Less(min) {
		min = b.Min
	}
	if max.Less(b.Max) {
		max = b.Max
	}
	return PageRange{Min: min, Max: max}
}
