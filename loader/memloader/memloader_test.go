package memloader

import (
	"testing"

	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/model"
	"github.com/stretchr/testify/require"
)

func f16(vs ...float32) []numeric.Float16 {
	out := make([]numeric.Float16, len(vs))
	for i, v := range vs {
		out[i] = numeric.FromFloat32(v)
	}
	return out
}

func TestLoadVectorExpF32(t *testing.T) {
	l := New(model.Info{NumEmb: 2, NumVocab: 4, NumHidden: 3, NumLayer: 1})
	l.PutF32("blocks.0.att.time_decay.weight", []float32{0, 1})
	got, err := l.LoadVectorExpF32("blocks.0.att.time_decay.weight")
	require.NoError(t, err)
	require.InDelta(t, -1, got.Data()[0], 1e-6)
}

func TestLoadMatrixMissing(t *testing.T) {
	l := New(model.Info{NumEmb: 2, NumVocab: 4})
	_, err := l.LoadMatrix("blocks.0.att.key.weight")
	require.Error(t, err)
}

func TestLoadEmbed(t *testing.T) {
	l := New(model.Info{NumEmb: 2, NumVocab: 4})
	l.PutF16("emb.weight", f16(1, 2, 3, 4, 5, 6, 7, 8))
	embed, err := l.LoadEmbed()
	require.NoError(t, err)
	require.Equal(t, 8, embed.Shape().Len())
}
