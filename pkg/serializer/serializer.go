// Package serializer converts typed values to and from the opaque byte
// strings stored on a job. The engine depends only on the interface; JSON is
// the default implementation.
package serializer

import (
	"encoding/json"
	"fmt"
)

// Serializer converts values of type T to bytes and back. Implementations
// must round-trip: Deserialize(Serialize(v)) == v for every valid v.
type Serializer[T any] interface {
	Serialize(val T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

// JSON is a Serializer backed by encoding/json.
type JSON[T any] struct{}

// NewJSON returns a JSON serializer for T.
func NewJSON[T any]() JSON[T] { return JSON[T]{} }

func (JSON[T]) Serialize(val T) ([]byte, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("serializing %T: %w", val, err)
	}
	return b, nil
}

func (JSON[T]) Deserialize(data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("deserializing %T: %w", out, err)
	}
	return out, nil
}

// NoBody is the sentinel request type for handlers registered without a
// request body. Its serialized form is an empty JSON object.
type NoBody struct{}
