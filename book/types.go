// Package book implements the Book Coordinator: it owns a pages.List, a
// frame.Builder and a preload.Pipeline for one open book, wires their
// events together, and exposes the navigation and configuration surface
// a UI actually calls.
package book

import (
	"time"

	"github.com/komareader/core/frame"
	"github.com/komareader/core/pages"
	"github.com/komareader/core/preload"
)

// Entry describes one source item handed to Open: either an archive
// member or a loose image file.
type Entry struct {
	Name     string
	Locator  string
	Width    int // 0 if unknown; UpdateSize can refine it later
	Height   int
	ModTime  time.Time
	FileSize int64
	Kind     pages.PageKind
}

// OpenOptions are the optional knobs of Open.
type OpenOptions struct {
	IsArchive  bool
	StartIndex int
}

// Info describes the book that book-open carries.
type Info struct {
	Locator   string
	PageCount int
	IsArchive bool
	OpenedAt  time.Time
}

// Observer receives the Coordinator's emitted events (spec.md §6). Embed
// NoopObserver to implement only the events you care about, matching the
// pattern pages.List already uses for its single OnRebuild callback,
// generalized to the full event family here.
type Observer interface {
	OnBookOpen(info Info)
	OnBookClose()
	OnPageChange(index int, f *frame.Frame)
	OnPagesRebuilt()
	OnLoadProgress(loaded, total int)
	OnPreloadTaskStart(task preload.Task)
	OnPreloadTaskComplete(fp preload.Fingerprint, result preload.Result)
	OnPreloadQueueChange(size int)
	OnPreloadFocusChange(focus int)
}

// NoopObserver is an embeddable Observer implementation where every
// method is a no-op; embed it and override only the events a particular
// listener needs.
type NoopObserver struct{}

func (NoopObserver) OnBookOpen(Info)                                          {}
func (NoopObserver) OnBookClose()                                             {}
func (NoopObserver) OnPageChange(int, *frame.Frame)                           {}
func (NoopObserver) OnPagesRebuilt()                                          {}
func (NoopObserver) OnLoadProgress(int, int)                                  {}
func (NoopObserver) OnPreloadTaskStart(preload.Task)                          {}
func (NoopObserver) OnPreloadTaskComplete(preload.Fingerprint, preload.Result) {}
func (NoopObserver) OnPreloadQueueChange(int)                                 {}
func (NoopObserver) OnPreloadFocusChange(int)                                 {}
