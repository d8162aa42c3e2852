package preload

// Config holds the window size, per-kind concurrency caps and the
// auto-upscale toggle from spec.md §4.3/§6.
type Config struct {
	Ahead, Behind int
	Concurrency   map[Kind]int
	AutoUpscale   bool
}

// DefaultConfig returns a small lookahead window with conservative
// concurrency caps and auto-upscale disabled.
func DefaultConfig() Config {
	return Config{
		Ahead:  2,
		Behind: 1,
		Concurrency: map[Kind]int{
			KindImage:     2,
			KindThumbnail: 4,
			KindUpscale:   1,
		},
		AutoUpscale: false,
	}
}

func (c Config) capFor(k Kind) int {
	if c.Concurrency == nil {
		return 1
	}
	if n, ok := c.Concurrency[k]; ok && n > 0 {
		return n
	}
	return 1
}
