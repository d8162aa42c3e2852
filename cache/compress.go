package cache

import "github.com/klauspost/compress/snappy"

// compressThreshold mirrors the pack's pager-level compression policy:
// small payloads aren't worth the snappy frame overhead.
const compressThreshold = 512

// maybeCompress snappy-compresses data, but only reports compressed=true
// when doing so actually shrank it — the same "only keep it if it's a
// win" rule the pack's disk pager applies to its own records.
func maybeCompress(data []byte) (out []byte, compressed bool) {
	if len(data) < compressThreshold {
		return data, false
	}
	enc := snappy.Encode(nil, data)
	if len(enc) < len(data) {
		return enc, true
	}
	return data, false
}

func maybeDecompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	return snappy.Decode(nil, data)
}
