package job

import (
	"fmt"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/loader/memloader"
	"github.com/cahya-wirawan/web-rwkv/model"
)

// tinyModelInfo is a small enough V4 shape to record a full job against
// without the fixture becoming unreadable.
func tinyModelInfo() model.Info {
	return model.Info{Version: model.V4, NumLayer: 2, NumEmb: 4, NumHidden: 8, NumVocab: 6}
}

func f16Vec(n int, v float32) []numeric.Float16 {
	out := make([]numeric.Float16, n)
	for i := range out {
		out[i] = numeric.FromFloat32(v)
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

// tinyLoader populates a memloader.Loader with every canonical tensor
// tinyModelInfo's layers need. Weights are small uniform constants, not
// meant to be numerically meaningful beyond staying finite through a
// couple of layers.
func tinyLoader() *memloader.Loader {
	info := tinyModelInfo()
	l := memloader.New(info)

	l.PutF16("emb.weight", f16Vec(info.NumEmb*info.NumVocab, 0.01))
	l.PutF16("emb.ln0.weight", f16Vec(info.NumEmb, 1))
	l.PutF16("emb.ln0.bias", f16Vec(info.NumEmb, 0))
	l.PutF16("ln_out.weight", f16Vec(info.NumEmb, 1))
	l.PutF16("ln_out.bias", f16Vec(info.NumEmb, 0))
	l.PutF16("head.weight", f16Vec(info.NumVocab*info.NumEmb, 0.01))

	for lyr := 0; lyr < info.NumLayer; lyr++ {
		p := fmt.Sprintf("blocks.%d", lyr)
		l.PutF16(p+".ln1.weight", f16Vec(info.NumEmb, 1))
		l.PutF16(p+".ln1.bias", f16Vec(info.NumEmb, 0))
		l.PutF32(p+".att.time_decay.weight", f32Vec(info.NumEmb, -1))
		l.PutF32(p+".att.time_first.weight", f32Vec(info.NumEmb, 0))
		l.PutF16(p+".att.time_mix_k.weight", f16Vec(info.NumEmb, 0.5))
		l.PutF16(p+".att.time_mix_v.weight", f16Vec(info.NumEmb, 0.5))
		l.PutF16(p+".att.time_mix_r.weight", f16Vec(info.NumEmb, 0.5))
		l.PutF16(p+".att.key.weight", f16Vec(info.NumEmb*info.NumEmb, 0.02))
		l.PutF16(p+".att.value.weight", f16Vec(info.NumEmb*info.NumEmb, 0.02))
		l.PutF16(p+".att.receptance.weight", f16Vec(info.NumEmb*info.NumEmb, 0.02))
		l.PutF16(p+".att.output.weight", f16Vec(info.NumEmb*info.NumEmb, 0.02))

		l.PutF16(p+".ln2.weight", f16Vec(info.NumEmb, 1))
		l.PutF16(p+".ln2.bias", f16Vec(info.NumEmb, 0))
		l.PutF16(p+".ffn.time_mix_k.weight", f16Vec(info.NumEmb, 0.5))
		l.PutF16(p+".ffn.time_mix_r.weight", f16Vec(info.NumEmb, 0.5))
		l.PutF16(p+".ffn.key.weight", f16Vec(info.NumHidden*info.NumEmb, 0.02))
		l.PutF16(p+".ffn.value.weight", f16Vec(info.NumEmb*info.NumHidden, 0.02))
		l.PutF16(p+".ffn.receptance.weight", f16Vec(info.NumEmb*info.NumEmb, 0.02))
	}
	return l
}

func buildTinyModel(dev device.Device) (*model.Model, error) {
	b := &model.Builder{Dev: dev}
	return b.Build(tinyLoader())
}
