package cache

import "encoding/json"

// Codec converts a namespace's value type to and from the bytes a
// DurableStore persists. No pack library offers a generic struct<->bytes
// codec (grpc/protobuf were dropped as out of this domain; yaml.v3 is
// reserved for human-authored config, not opaque cache payloads), so
// this wraps the standard library's encoding/json.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

type jsonCodec[T any] struct{}

// JSONCodec returns a Codec backed by encoding/json.
func JSONCodec[T any]() Codec[T] { return jsonCodec[T]{} }

func (jsonCodec[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
