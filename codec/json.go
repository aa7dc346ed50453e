package codec

import "encoding/json"

// JSON serializes values with encoding/json. Larger and slower than Msgpack
// but the stored records stay inspectable with standard tooling, which is
// useful while debugging a persistent cache directory.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
