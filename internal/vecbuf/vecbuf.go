// Package vecbuf converts between packed little-endian float32 buffers and
// typed vectors. Buffers are always copied, never aliased.
package vecbuf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float32Size is the byte width of one vector element.
const Float32Size = 4

// Decode copies a packed little-endian float32 buffer into a new slice.
// The byte length must be a multiple of Float32Size.
func Decode(b []byte) ([]float32, error) {
	if len(b)%Float32Size != 0 {
		return nil, fmt.Errorf("vecbuf: buffer length %d is not a multiple of %d", len(b), Float32Size)
	}
	n := len(b) / Float32Size
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*Float32Size:]))
	}
	return vec, nil
}

// DecodeDim decodes b and requires exactly dim elements.
func DecodeDim(b []byte, dim int) ([]float32, error) {
	if len(b) != dim*Float32Size {
		return nil, fmt.Errorf("vecbuf: expected %d bytes for dimension %d, got %d", dim*Float32Size, dim, len(b))
	}
	return Decode(b)
}

// Encode packs vec as little-endian float32 values.
func Encode(vec []float32) []byte {
	b := make([]byte, len(vec)*Float32Size)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*Float32Size:], math.Float32bits(v))
	}
	return b
}
