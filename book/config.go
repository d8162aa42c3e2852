package book

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/komareader/core/frame"
	"github.com/komareader/core/pages"
	"github.com/komareader/core/preload"
)

// Config assembles every subsystem's configuration into one value a host
// process can load from YAML, matching spec.md §6's enumerated knobs.
type Config struct {
	// Virtual-list / page-frame knobs (spec.md §4.1, §4.2).
	DivideLandscape bool    `yaml:"divide_landscape"`
	DivideThreshold float64 `yaml:"divide_threshold"`
	PageMode        string  `yaml:"page_mode"` // "single" or "wide"
	ReadOrder       string  `yaml:"read_order"` // "ltr" or "rtl"
	SingleFirstPage bool    `yaml:"single_first_page"`
	SingleLastPage  bool    `yaml:"single_last_page"`
	SupportWidePage bool    `yaml:"support_wide_page"`
	FramePageSize   int     `yaml:"frame_page_size"`
	InsertDummyPage bool    `yaml:"insert_dummy_page"`
	IsLoop          bool    `yaml:"is_loop"`

	// Preload knobs (spec.md §4.3).
	PreloadAhead            int  `yaml:"preload_ahead"`
	PreloadBehind           int  `yaml:"preload_behind"`
	MaxConcurrentImages     int  `yaml:"max_concurrent_images"`
	MaxConcurrentThumbnails int  `yaml:"max_concurrent_thumbnails"`
	MaxConcurrentUpscale    int  `yaml:"max_concurrent_upscale"`
	AutoUpscale             bool `yaml:"auto_upscale"`

	// Supplemented (SPEC_FULL.md §10): manga-mode convenience default.
	MangaMode bool `yaml:"manga_mode"`
}

// DefaultConfig returns the spec's default knob values.
func DefaultConfig() Config {
	return Config{
		DivideThreshold:         1.0,
		PageMode:                "single",
		ReadOrder:               "ltr",
		FramePageSize:           1,
		PreloadAhead:            2,
		PreloadBehind:           1,
		MaxConcurrentImages:     2,
		MaxConcurrentThumbnails: 4,
		MaxConcurrentUpscale:    1,
	}
}

// LoadConfig reads a Config from a YAML file at path, starting from
// DefaultConfig so an omitted field keeps its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withMangaDefaults applies the manga-mode convenience default when
// MangaMode is set: ReadOrder becomes "rtl" (overriding whatever it held)
// and FramePageSize is raised to 2 if it was lower. PageMode is not
// changed.
func (c Config) withMangaDefaults() Config {
	if !c.MangaMode {
		return c
	}
	c.ReadOrder = "rtl"
	if c.FramePageSize < 2 {
		c.FramePageSize = 2
	}
	return c
}

func (c Config) readOrder() pages.ReadOrder {
	if c.ReadOrder == "rtl" {
		return pages.OrderRTL
	}
	return pages.OrderLTR
}

func (c Config) pageMode() pages.PageMode {
	if c.PageMode == "wide" {
		return pages.ModeWide
	}
	return pages.ModeSingle
}

func (c Config) pagesConfig() pages.Config {
	return pages.Config{
		SplitLandscape: c.DivideLandscape,
		SplitThreshold: c.DivideThreshold,
		PageMode:       c.pageMode(),
		ReadOrder:      c.readOrder(),
		SingleFirst:    c.SingleFirstPage,
		SingleLast:     c.SingleLastPage,
		SupportWide:    c.SupportWidePage,
	}
}

func (c Config) frameConfig() frame.Config {
	return frame.Config{
		FramePageSize: c.FramePageSize,
		SupportWide:   c.SupportWidePage,
		SingleFirst:   c.SingleFirstPage,
		SingleLast:    c.SingleLastPage,
		InsertDummy:   c.InsertDummyPage,
		ReadOrder:     c.readOrder(),
		IsLoop:        c.IsLoop,
	}
}

func (c Config) preloadConfig() preload.Config {
	return preload.Config{
		Ahead:  c.PreloadAhead,
		Behind: c.PreloadBehind,
		Concurrency: map[preload.Kind]int{
			preload.KindImage:     orOne(c.MaxConcurrentImages),
			preload.KindThumbnail: orOne(c.MaxConcurrentThumbnails),
			preload.KindUpscale:   orOne(c.MaxConcurrentUpscale),
		},
		AutoUpscale: c.AutoUpscale,
	}
}

func orOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
