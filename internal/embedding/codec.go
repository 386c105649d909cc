package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// bytesPerValue is the encoded size of one float32.
const bytesPerValue = 4

// EncodeValues serializes a float sequence as little-endian IEEE-754 float32,
// 4 bytes per value. DecodeValues reverses it bit-exactly.
func EncodeValues(values []float32) []byte {
	buf := make([]byte, len(values)*bytesPerValue)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*bytesPerValue:], math.Float32bits(v))
	}
	return buf
}

// DecodeValues parses bytes produced by EncodeValues.
func DecodeValues(data []byte) ([]float32, error) {
	if len(data)%bytesPerValue != 0 {
		return nil, fmt.Errorf("decode values: length %d is not a multiple of %d", len(data), bytesPerValue)
	}
	values := make([]float32, len(data)/bytesPerValue)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*bytesPerValue:]))
	}
	return values, nil
}
