// Package frame implements the Page Frame Builder: it groups virtual pages
// from a pages.List into PageFrames, the unit the renderer actually
// displays (one or two pages side by side), handling wide-page exceptions,
// terminal pages and dummy-page padding.
package frame

import (
	"github.com/google/uuid"

	"github.com/komareader/core/internal/ids"
	"github.com/komareader/core/pages"
)

// Terminal describes whether a frame touches the start and/or end of the
// book.
type Terminal uint8

const (
	TerminalNone  Terminal = 0
	TerminalFirst Terminal = 1 << iota
	TerminalLast
)

func (t Terminal) First() bool { return t&TerminalFirst != 0 }
func (t Terminal) Last() bool  { return t&TerminalLast != 0 }
func (t Terminal) Both() bool  { return t.First() && t.Last() }

// Element is one displayed virtual page within a frame.
type Element struct {
	VirtualIndex int
	RawWidth     int
	RawHeight    int
	Scale        float64
	OffsetX      float64
	Dummy        bool
	Range        pages.PageRange
}

// Frame is the renderer's display unit: one or two Elements laid out
// horizontally, covering a contiguous PageRange.
type Frame struct {
	ID        uuid.UUID
	Elements  []Element
	Range     pages.PageRange
	Direction int
	Width     float64
	Height    float64
	Terminal  Terminal
}

func newFrameID() uuid.UUID { return ids.New() }

// cellRange returns the navigation "cell" a single virtual index occupies:
// (index,0) through (index,1). Every element, divided or not, spans a full
// cell — "part" at this level is a navigation bookkeeping flag distinct
// from VirtualPage.Part (the crop selector); see DESIGN.md.
func cellRange(vi int) pages.PageRange {
	return pages.PageRange{
		Min: pages.PagePosition{Index: vi, Part: 0},
		Max: pages.PagePosition{Index: vi, Part: 1},
	}
}
