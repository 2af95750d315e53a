package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorPackDecode(t *testing.T) {
	c := PackCursor(3, 17, 20)
	b, w, l := c.Decode()
	assert.Equal(t, 3, b)
	assert.Equal(t, 17, w)
	assert.Equal(t, 20, l)
}

func TestBuildCursors(t *testing.T) {
	cursors := BuildCursors([]int{2, 0, 1})
	assert.Len(t, cursors, 3)

	b0, w0, l0 := cursors[0].Decode()
	assert.Equal(t, 0, b0)
	assert.Equal(t, 0, w0)
	assert.Equal(t, 2, l0)

	b1, w1, l1 := cursors[1].Decode()
	assert.Equal(t, 0, b1)
	assert.Equal(t, 1, w1)
	assert.Equal(t, 2, l1)

	b2, w2, l2 := cursors[2].Decode()
	assert.Equal(t, 2, b2)
	assert.Equal(t, 0, w2)
	assert.Equal(t, 1, l2)
}
