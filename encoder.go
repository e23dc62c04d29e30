package pagekit

import "encoding/json"

// Encoder defines the interface for statistics and metadata serialization.
type Encoder interface {
	// Encode serializes a value to bytes.
	Encode(any) ([]byte, error)
}

// JSONEncoder is the default implementation of Encoder using JSON.
type JSONEncoder struct{}

// Encode serializes a value to JSON using the standard library.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
