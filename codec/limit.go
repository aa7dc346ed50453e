package codec

import "fmt"

// Limit wraps another codec to cap the accepted payload size at Decode time.
// Encode is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// Use it when records come back from a shared backend (e.g. Redis) that other
// writers can reach: an oversized blob is rejected before the inner codec
// allocates for it.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
