package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintMatchesCheckEquivalence(t *testing.T) {
	a := InferInfo{{Tokens: []uint16{1, 2}, Output: true}, {Tokens: []uint16{3}, Output: false}}
	b := InferInfo{{Tokens: []uint16{9, 9}, Output: true}, {Tokens: []uint16{4}, Output: false}}
	c := InferInfo{{Tokens: []uint16{1, 2}, Output: false}, {Tokens: []uint16{3}, Output: false}}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "same shape should fingerprint identically")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint(), "different output redirection should fingerprint differently")
}

func TestFingerprintDiffersOnBatchCount(t *testing.T) {
	a := InferInfo{{Tokens: []uint16{1}, Output: true}}
	b := InferInfo{{Tokens: []uint16{1}, Output: true}, {Tokens: nil, Output: false}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
