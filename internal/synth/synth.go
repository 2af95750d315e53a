// Package synth builds small, deterministic, fully-populated models for
// exercising the runtime without a real checkpoint file: the CLI's `run`
// command and this module's own tests both use it as a stand-in for a
// model.Reader backed by an actual weight file.
package synth

import (
	"fmt"
	"math"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/loader/memloader"
	"github.com/cahya-wirawan/web-rwkv/model"
)

func f16Vec(n int, seed func(i int) float32) []numeric.Float16 {
	out := make([]numeric.Float16, n)
	for i := range out {
		out[i] = numeric.FromFloat32(seed(i))
	}
	return out
}

func f32Vec(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// small returns a deterministic, bounded pseudo-weight for position i, so
// every tensor has varied but finite, small-magnitude content instead of
// a flat constant.
func small(scale float32) func(i int) float32 {
	return func(i int) float32 {
		return scale * float32(math.Sin(float64(i)+1))
	}
}

// Loader builds a memloader.Loader populated with every canonical tensor
// info's layers require, with deterministic synthetic weights.
func Loader(info model.Info) *memloader.Loader {
	l := memloader.New(info)

	l.PutF16("emb.weight", f16Vec(info.NumEmb*info.NumVocab, small(0.02)))
	l.PutF16("emb.ln0.weight", f16Vec(info.NumEmb, func(int) float32 { return 1 }))
	l.PutF16("emb.ln0.bias", f16Vec(info.NumEmb, func(int) float32 { return 0 }))
	l.PutF16("ln_out.weight", f16Vec(info.NumEmb, func(int) float32 { return 1 }))
	l.PutF16("ln_out.bias", f16Vec(info.NumEmb, func(int) float32 { return 0 }))
	l.PutF16("head.weight", f16Vec(info.NumVocab*info.NumEmb, small(0.02)))

	for lyr := 0; lyr < info.NumLayer; lyr++ {
		p := fmt.Sprintf("blocks.%d", lyr)
		l.PutF16(p+".ln1.weight", f16Vec(info.NumEmb, func(int) float32 { return 1 }))
		l.PutF16(p+".ln1.bias", f16Vec(info.NumEmb, func(int) float32 { return 0 }))
		l.PutF32(p+".att.time_decay.weight", f32Vec(info.NumEmb, -1))
		l.PutF32(p+".att.time_first.weight", f32Vec(info.NumEmb, 0))
		l.PutF16(p+".att.time_mix_k.weight", f16Vec(info.NumEmb, func(int) float32 { return 0.5 }))
		l.PutF16(p+".att.time_mix_v.weight", f16Vec(info.NumEmb, func(int) float32 { return 0.5 }))
		l.PutF16(p+".att.time_mix_r.weight", f16Vec(info.NumEmb, func(int) float32 { return 0.5 }))
		l.PutF16(p+".att.key.weight", f16Vec(info.NumEmb*info.NumEmb, small(0.03)))
		l.PutF16(p+".att.value.weight", f16Vec(info.NumEmb*info.NumEmb, small(0.03)))
		l.PutF16(p+".att.receptance.weight", f16Vec(info.NumEmb*info.NumEmb, small(0.03)))
		l.PutF16(p+".att.output.weight", f16Vec(info.NumEmb*info.NumEmb, small(0.03)))

		l.PutF16(p+".ln2.weight", f16Vec(info.NumEmb, func(int) float32 { return 1 }))
		l.PutF16(p+".ln2.bias", f16Vec(info.NumEmb, func(int) float32 { return 0 }))
		l.PutF16(p+".ffn.time_mix_k.weight", f16Vec(info.NumEmb, func(int) float32 { return 0.5 }))
		l.PutF16(p+".ffn.time_mix_r.weight", f16Vec(info.NumEmb, func(int) float32 { return 0.5 }))
		l.PutF16(p+".ffn.key.weight", f16Vec(info.NumHidden*info.NumEmb, small(0.03)))
		l.PutF16(p+".ffn.value.weight", f16Vec(info.NumEmb*info.NumHidden, small(0.03)))
		l.PutF16(p+".ffn.receptance.weight", f16Vec(info.NumEmb*info.NumEmb, small(0.03)))
	}
	return l
}

// BuildModel builds a synthetic model directly on dev.
func BuildModel(dev device.Device, info model.Info) (*model.Model, error) {
	b := &model.Builder{Dev: dev}
	return b.Build(Loader(info))
}
