package model

import (
	"fmt"
	"math"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/matrix"
)

// Builder assembles a Model from a Reader. Per-weight loads are this
// package's suspension point on a real async backend (spec: "Suspension
// points: ModelBuilder.build, ..."); the CPU reference runs them
// synchronously and returns a plain error instead of a future, since
// there is no actual I/O latency to hide.
type Builder struct {
	Quant map[string]Quant // keyed by canonical matrix name; QuantNone if absent
	Lora  *Lora
	Dev   device.Device
}

func quantOf(q map[string]Quant, name string) Quant {
	if q == nil {
		return QuantNone
	}
	return q[name]
}

// Build resolves every tensor the Info's version needs and returns an
// immutable Model.
func (b *Builder) Build(r Reader) (*Model, error) {
	info, err := r.Info()
	if err != nil {
		return nil, err
	}

	embedHost, err := r.LoadEmbed()
	if err != nil {
		return nil, err
	}
	embedLnW, err := b.uploadF16(r, "emb.ln0.weight")
	if err != nil {
		return nil, err
	}
	embedLnB, err := b.uploadF16(r, "emb.ln0.bias")
	if err != nil {
		return nil, err
	}
	headLnW, err := b.uploadF16(r, "ln_out.weight")
	if err != nil {
		return nil, err
	}
	headLnB, err := b.uploadF16(r, "ln_out.bias")
	if err != nil {
		return nil, err
	}
	head, err := b.loadMatrix(r, "head.weight", 0, false)
	if err != nil {
		return nil, err
	}

	layers := make([]Layer, info.NumLayer)
	for l := 0; l < info.NumLayer; l++ {
		layer, err := b.buildLayer(r, info, l)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		layers[l] = layer
	}

	return &Model{
		Info:        info,
		EmbedHost:   embedHost,
		EmbedLnW:    embedLnW,
		EmbedLnB:    embedLnB,
		HeadLnW:     headLnW,
		HeadLnB:     headLnB,
		Head:        head,
		Layers:      layers,
	}, nil
}

func (b *Builder) buildLayer(r Reader, info Info, l int) (Layer, error) {
	var layer Layer
	prefix := fmt.Sprintf("blocks.%d", l)

	var err error
	if layer.Att.LayerNormW, err = b.uploadF16(r, prefix+".ln1.weight"); err != nil {
		return layer, err
	}
	if layer.Att.LayerNormB, err = b.uploadF16(r, prefix+".ln1.bias"); err != nil {
		return layer, err
	}
	decayHost, err := r.LoadVectorExpF32(prefix + ".att.time_decay.weight")
	if err != nil {
		return layer, err
	}
	if layer.Att.TimeDecay, err = uploadDevice(b.Dev, decayHost); err != nil {
		return layer, err
	}
	firstHost, err := r.LoadVectorF32(prefix + ".att.time_first.weight")
	if err != nil {
		return layer, err
	}
	if layer.Att.TimeFirst, err = uploadDevice(b.Dev, firstHost); err != nil {
		return layer, err
	}
	if layer.Att.TimeMixK, err = b.uploadF16(r, prefix+".att.time_mix_k.weight"); err != nil {
		return layer, err
	}
	if layer.Att.TimeMixV, err = b.uploadF16(r, prefix+".att.time_mix_v.weight"); err != nil {
		return layer, err
	}
	if layer.Att.TimeMixR, err = b.uploadF16(r, prefix+".att.time_mix_r.weight"); err != nil {
		return layer, err
	}
	if layer.Att.WK, err = b.loadMatrix(r, prefix+".att.key.weight", 0, false); err != nil {
		return layer, err
	}
	if layer.Att.WV, err = b.loadMatrix(r, prefix+".att.value.weight", 0, false); err != nil {
		return layer, err
	}
	if layer.Att.WR, err = b.loadMatrix(r, prefix+".att.receptance.weight", 0, false); err != nil {
		return layer, err
	}
	if layer.Att.WO, err = b.loadMatrix(r, prefix+".att.output.weight", l, true); err != nil {
		return layer, err
	}

	if layer.Ffn.LayerNormW, err = b.uploadF16(r, prefix+".ln2.weight"); err != nil {
		return layer, err
	}
	if layer.Ffn.LayerNormB, err = b.uploadF16(r, prefix+".ln2.bias"); err != nil {
		return layer, err
	}
	if layer.Ffn.TimeMixK, err = b.uploadF16(r, prefix+".ffn.time_mix_k.weight"); err != nil {
		return layer, err
	}
	if layer.Ffn.TimeMixR, err = b.uploadF16(r, prefix+".ffn.time_mix_r.weight"); err != nil {
		return layer, err
	}
	if layer.Ffn.WK, err = b.loadMatrix(r, prefix+".ffn.key.weight", 0, false); err != nil {
		return layer, err
	}
	if layer.Ffn.WV, err = b.loadMatrix(r, prefix+".ffn.value.weight", l, true); err != nil {
		return layer, err
	}
	if layer.Ffn.WR, err = b.loadMatrix(r, prefix+".ffn.receptance.weight", 0, false); err != nil {
		return layer, err
	}
	return layer, nil
}

// uploadF16 loads a f16 vector by name and uploads it to a device
// buffer, applying no LoRA blend (vectors are not blend targets in this
// runtime; only weight matrices are).
func (b *Builder) uploadF16(r Reader, name string) (*tensor.DeviceTensor[numeric.Float16], error) {
	host, err := r.LoadVectorF16(name)
	if err != nil {
		return nil, err
	}
	return uploadDevice(b.Dev, host)
}

func uploadDevice[T numeric.Element](dev device.Device, host *tensor.HostTensor[T]) (*tensor.DeviceTensor[T], error) {
	buf, err := dev.NewBuffer(host.Shape().Len()*numeric.Size[T](), tensor.UsageStorage|tensor.UsageCopyDst)
	if err != nil {
		return nil, err
	}
	dt, err := tensor.NewDeviceTensor[T](host.Shape(), buf, 0)
	if err != nil {
		return nil, err
	}
	if err := dt.WriteHost(host); err != nil {
		return nil, err
	}
	return dt, nil
}

// loadMatrix resolves name, applies a matching LoRA blend, optionally
// discounts (for w_o and feed-forward w_v, per spec.md §4.6: factor =
// 2^-floor(layer/RESCALE_LAYER)), then quantizes if Quant requests it.
func (b *Builder) loadMatrix(r Reader, name string, layer int, discountable bool) (matrix.Matrix, error) {
	dense, err := r.LoadMatrix(name)
	if err != nil {
		return nil, err
	}
	if alpha, ok := b.Lora.Matches(name); ok {
		delta, err := b.Lora.Deltas.LoadMatrix(name)
		if err != nil {
			return nil, fmt.Errorf("lora delta for %s: %w", name, err)
		}
		if err := dense.AddScaled(delta, alpha); err != nil {
			return nil, fmt.Errorf("lora blend for %s: %w", name, err)
		}
	}
	if discountable {
		factor := float32(math.Pow(2, -math.Floor(float64(layer)/float64(RescaleLayer))))
		dense.Scale(factor)
	}
	if quantOf(b.Quant, name) == QuantInt8 {
		return matrix.Quantize(dense), nil
	}
	return dense, nil
}
