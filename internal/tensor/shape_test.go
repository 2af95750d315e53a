package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeLenAndIndex(t *testing.T) {
	s := NewShape(2, 3, 4, 1)
	require.Equal(t, 24, s.Len())
	// idx = ((i3*d2+i2)*d1+i1)*d0+i0
	assert.Equal(t, 0, s.Index(0, 0, 0, 0))
	assert.Equal(t, 1, s.Index(1, 0, 0, 0))
	assert.Equal(t, 2, s.Index(0, 1, 0, 0))
	assert.Equal(t, 6, s.Index(0, 0, 1, 0))
}

func TestHostTensorConstructSizeMismatch(t *testing.T) {
	_, err := NewHostTensor[float32](NewShape(2, 2, 1, 1), []float32{1, 2, 3})
	require.Error(t, err)
}

func TestHostTensorSlice(t *testing.T) {
	ht, err := NewHostTensor[float32](NewShape(2, 3, 1, 1), []float32{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)
	sub, err := ht.Slice([4]AxisRange{Full(), Range(1, 2), Full(), Full()})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, sub.Data())
}
