package job

import (
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/ops"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/model"
)

// Runtime is the set of per-call scratch tensors every recorded pass
// reads and writes. A single Runtime is shared by every layer's
// recorded ops: layers execute strictly in submission order (PassID),
// so reusing the same buffers across layers is safe even when the ops
// that reference them were *recorded* concurrently, since recording
// only captures tensor references — it performs no reads or writes
// itself.
type Runtime struct {
	Input *ops.F32Tensor // the residual stream threaded across layers

	AttX, AttKx, AttVx, AttRx *ops.F32Tensor
	AttK, AttV, AttR          *ops.F32Tensor
	AttMix                    *ops.F32Tensor // time-mix output, pre-w_o
	AttO                      *ops.F32Tensor // post-w_o, the residual delta

	FfnX, FfnKx, FfnRx *ops.F32Tensor
	FfnK               *ops.F32Tensor // num_hidden-wide
	FfnV, FfnR         *ops.F32Tensor
	FfnResidual        *ops.F32Tensor // raw pre-layernorm ffn input, stashed for the final residual add

	// HeadX is the head pass's input: an alias of Input (no compaction
	// needed) or a freshly allocated, Blit-compacted tensor, set by the
	// builder once it knows the header count.
	HeadX *ops.F32Tensor
	// Logits is the head pass's output, width len(redirect.Headers); nil
	// if no batch in the call requested output.
	Logits *ops.F32Tensor
}

func newF32(dev device.Device, info model.Info, width int) (*ops.F32Tensor, error) {
	shape := tensor.NewShape(info.NumEmb, width, 1, 1)
	buf, err := dev.NewBuffer(shape.Len()*4, tensor.UsageStorage|tensor.UsageCopySrc|tensor.UsageCopyDst)
	if err != nil {
		return nil, err
	}
	return tensor.NewDeviceTensor[float32](shape, buf, 0)
}

// newRuntime allocates every scratch tensor a numToken-wide inference
// call needs, except HeadX/Logits, which the builder fills in once it
// knows the header count.
func newRuntime(dev device.Device, info model.Info, numToken int) (*Runtime, error) {
	rt := &Runtime{}
	fields := []**ops.F32Tensor{
		&rt.Input,
		&rt.AttX, &rt.AttKx, &rt.AttVx, &rt.AttRx,
		&rt.AttK, &rt.AttV, &rt.AttR, &rt.AttMix, &rt.AttO,
		&rt.FfnX, &rt.FfnKx, &rt.FfnRx, &rt.FfnV, &rt.FfnR, &rt.FfnResidual,
	}
	for _, f := range fields {
		t, err := newF32(dev, info, numToken)
		if err != nil {
			return nil, err
		}
		*f = t
	}
	// FfnK is num_hidden-wide, not num_emb-wide, so it can't go through
	// newF32 (which always sizes axis 0 to num_emb).
	shape := tensor.NewShape(info.NumHidden, numToken, 1, 1)
	buf, err := dev.NewBuffer(shape.Len()*4, tensor.UsageStorage|tensor.UsageCopySrc|tensor.UsageCopyDst)
	if err != nil {
		return nil, err
	}
	rt.FfnK, err = tensor.NewDeviceTensor[float32](shape, buf, 0)
	if err != nil {
		return nil, err
	}
	return rt, nil
}
