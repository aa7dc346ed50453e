// Package codec provides pluggable (de)serialization for persistent-store
// records. The default is Msgpack; CBOR and JSON are available when the
// stored bytes need to be canonical or human-readable.
package codec

// Codec encodes/decodes values V to []byte for durable storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
