package numeric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		buf := Encode[float32](nil, 3.5)
		require.Equal(t, 4, len(buf))
		require.Equal(t, float32(3.5), Decode[float32](buf))
	})
	t.Run("Float16", func(t *testing.T) {
		h := FromFloat32(2.0)
		buf := Encode[Float16](nil, h)
		require.Equal(t, 2, len(buf))
		require.Equal(t, h, Decode[Float16](buf))
	})
	t.Run("uint8", func(t *testing.T) {
		buf := Encode[uint8](nil, 200)
		require.Equal(t, 1, len(buf))
		require.Equal(t, uint8(200), Decode[uint8](buf))
	})
	t.Run("uint16", func(t *testing.T) {
		buf := Encode[uint16](nil, 60000)
		require.Equal(t, 2, len(buf))
		require.Equal(t, uint16(60000), Decode[uint16](buf))
	})
	t.Run("uint32", func(t *testing.T) {
		buf := Encode[uint32](nil, 4000000000)
		require.Equal(t, 4, len(buf))
		require.Equal(t, uint32(4000000000), Decode[uint32](buf))
	})
}

func TestSize(t *testing.T) {
	require.Equal(t, 4, Size[float32]())
	require.Equal(t, 2, Size[Float16]())
	require.Equal(t, 1, Size[uint8]())
	require.Equal(t, 2, Size[uint16]())
	require.Equal(t, 4, Size[uint32]())
}
