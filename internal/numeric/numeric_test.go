package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat16RoundTrip(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, -0.5, 3.14159, 65504, -65504, 1e-5, 1024}
	for _, f := range cases {
		h := FromFloat32(f)
		got := ToFloat32(h)
		assert.InDeltaf(t, float64(f), float64(got), 0.01, "round trip of %v", f)
	}
}

func TestFloat16ZeroAndOne(t *testing.T) {
	assert.Equal(t, float32(0), ToFloat32(FromFloat32(0)))
	assert.Equal(t, float32(1), ToFloat32(FromFloat32(1)))
}

func TestFloat16Overflow(t *testing.T) {
	h := FromFloat32(1e10)
	got := ToFloat32(h)
	assert.True(t, got > 65000, "expected saturation to a large/inf value, got %v", got)
}

func TestKindByteSize(t *testing.T) {
	require.Equal(t, 4, F32.ByteSize())
	require.Equal(t, 2, F16.ByteSize())
	require.Equal(t, 1, U8.ByteSize())
	require.Equal(t, 2, U16.ByteSize())
	require.Equal(t, 4, U32.ByteSize())
}

func TestZeroOne(t *testing.T) {
	assert.Equal(t, float32(0), Zero[float32]())
	assert.Equal(t, float32(1), One[float32]())
	assert.Equal(t, uint32(0), Zero[uint32]())
	assert.Equal(t, uint32(1), One[uint32]())
}
