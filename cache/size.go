package cache

import (
	"encoding/json"
	"unicode/utf8"
)

const fallbackSize = 1024 // 1 KiB, used when a size can't otherwise be estimated.

// estimateSize implements spec.md §4.4's sizing fallback chain: caller-
// provided size wins; otherwise byte slices count their own length,
// strings count twice their character count, and anything else is
// estimated as twice its serialized-JSON length, falling back to 1 KiB if
// it can't be marshaled at all.
func estimateSize(v any) int64 {
	switch x := v.(type) {
	case []byte:
		return int64(len(x))
	case string:
		return int64(utf8.RuneCountInString(x) * 2)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fallbackSize
		}
		return int64(len(b) * 2)
	}
}
