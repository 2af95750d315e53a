package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumTokenAndTokensPerBatch(t *testing.T) {
	info := InferInfo{
		{Tokens: []uint16{1, 2, 3}},
		{Tokens: nil},
		{Tokens: []uint16{9}},
	}
	assert.Equal(t, 4, info.NumToken())
	assert.Equal(t, []int{3, 0, 1}, info.TokensPerBatch())
}

func TestBuildRedirectSkipsIdleAndUnrequestedBatches(t *testing.T) {
	info := InferInfo{
		{Tokens: []uint16{1, 2}, Output: true},
		{Tokens: []uint16{3}, Output: false},
		{Tokens: nil, Output: true},
		{Tokens: []uint16{4, 5, 6}, Output: true},
	}
	r := info.BuildRedirect()

	// absolute positions: batch0 -> [0,1], batch1 -> [2], batch2 -> [],
	// batch3 -> [3,4,5]. Last-token positions for output batches: 1, 5.
	assert.Equal(t, []int{1, 5}, r.Headers)
	assert.Equal(t, []int{0, -1, -1, 1}, r.Outputs)
}

func TestBuildRedirectAllIdle(t *testing.T) {
	info := InferInfo{{Tokens: nil}, {Tokens: nil}}
	r := info.BuildRedirect()
	assert.Empty(t, r.Headers)
	assert.Equal(t, []int{-1, -1}, r.Outputs)
}
