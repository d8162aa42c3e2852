package frame

import "github.com/komareader/core/pages"

// Config holds the knobs from spec.md §4.2 / §6 that affect frame layout.
type Config struct {
	FramePageSize int // 1 or 2
	SupportWide   bool
	SingleFirst   bool
	SingleLast    bool
	InsertDummy   bool
	ReadOrder     pages.ReadOrder
	IsLoop        bool
}

// DefaultConfig returns single-page, non-looping defaults.
func DefaultConfig() Config {
	return Config{FramePageSize: 1, ReadOrder: pages.OrderLTR}
}
