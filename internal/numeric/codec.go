package numeric

import (
	"encoding/binary"
	"math"
)

// Size returns the byte width of one T, used by DeviceTensor to compute
// buffer offsets without a runtime type switch at every call site.
func Size[T Element]() int {
	var zero T
	switch any(zero).(type) {
	case float32, uint32:
		return 4
	case Float16, uint16:
		return 2
	case uint8:
		return 1
	default:
		return 0
	}
}

// Encode appends the little-endian byte representation of v to dst.
func Encode[T Element](dst []byte, v T) []byte {
	switch x := any(v).(type) {
	case float32:
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(x))
	case Float16:
		return binary.LittleEndian.AppendUint16(dst, uint16(x))
	case uint8:
		return append(dst, x)
	case uint16:
		return binary.LittleEndian.AppendUint16(dst, x)
	case uint32:
		return binary.LittleEndian.AppendUint32(dst, x)
	default:
		panic("numeric: unsupported element type")
	}
}

// Decode reads one T from the front of src.
func Decode[T Element](src []byte) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		v := math.Float32frombits(binary.LittleEndian.Uint32(src))
		return any(v).(T)
	case Float16:
		v := Float16(binary.LittleEndian.Uint16(src))
		return any(v).(T)
	case uint8:
		v := src[0]
		return any(v).(T)
	case uint16:
		v := binary.LittleEndian.Uint16(src)
		return any(v).(T)
	case uint32:
		v := binary.LittleEndian.Uint32(src)
		return any(v).(T)
	default:
		panic("numeric: unsupported element type")
	}
}
