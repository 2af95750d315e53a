package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRejectsDifferentShape(t *testing.T) {
	b, st := newTestJobBuilder(t, 1)
	info := InferInfo{{Tokens: []uint16{1, 2}, Output: true}}

	j, err := b.Build(st, info)
	require.NoError(t, err)

	assert.False(t, j.Check(InferInfo{{Tokens: []uint16{1}, Output: true}}))
	assert.False(t, j.Check(InferInfo{{Tokens: []uint16{1, 2}, Output: false}}))
	assert.True(t, j.Check(InferInfo{{Tokens: []uint16{9, 9}, Output: true}}))
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	b, st := newTestJobBuilder(t, 1)
	info := InferInfo{{Tokens: []uint16{1, 2}, Output: true}}

	j, err := b.Build(st, info)
	require.NoError(t, err)

	err = j.Load(InferInfo{{Tokens: []uint16{1}, Output: true}})
	assert.Error(t, err)
	assert.Equal(t, Fresh, j.Stage())
}

func TestSubmitRequiresLoaded(t *testing.T) {
	b, st := newTestJobBuilder(t, 1)
	info := InferInfo{{Tokens: []uint16{1}, Output: true}}

	j, err := b.Build(st, info)
	require.NoError(t, err)

	err = j.Submit()
	assert.Error(t, err)
}

func TestBackRequiresSubmitted(t *testing.T) {
	b, st := newTestJobBuilder(t, 1)
	info := InferInfo{{Tokens: []uint16{1}, Output: true}}

	j, err := b.Build(st, info)
	require.NoError(t, err)
	require.NoError(t, j.Load(info))

	_, err = j.Back()
	assert.Error(t, err)
}

func TestStageStringers(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "submitted", Submitted.String())
	assert.Equal(t, "backed", Backed.String())
}
