package job

import (
	"fmt"

	"github.com/cahya-wirawan/web-rwkv/hooks"
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	catalog "github.com/cahya-wirawan/web-rwkv/internal/ops"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/internal/workerpool"
	"github.com/cahya-wirawan/web-rwkv/model"
	"github.com/cahya-wirawan/web-rwkv/state"
)

// MinTokenChunkSize gates the turbo matmul kernel flag: a call is
// "turbo" eligible when its total token count divides evenly by this,
// since the reference shader-dispatch batching only pays off at regular
// chunk boundaries (the CPU catalog's Matmul ignores the flag; it only
// selects a kernel variant on a real backend).
const MinTokenChunkSize = 4

// LayerNormEps is the fixed epsilon every LayerNorm call in this runtime
// uses, matching the upstream RWKV reference's 1e-5.
const LayerNormEps = 1e-5

// Builder records the recognized inference pipeline against a Model and
// a State. Catalog, Hooks, and Pool are optional: a nil Catalog defaults
// to catalog.CPU{}, a nil Hooks table is a no-op, and a nil Pool records
// every layer sequentially on the calling goroutine.
type Builder struct {
	Dev     device.Device
	Catalog catalog.Catalog
	Model   *model.Model
	Hooks   *hooks.Map
	Pool    *workerpool.Pool
}

func (b *Builder) catalogOrDefault() catalog.Catalog {
	if b.Catalog == nil {
		return catalog.CPU{}
	}
	return b.Catalog
}

// Build records a full inference pass for info against st: a prelude
// (host embedding lookup plus embedding layer-norm), one pass per model
// layer, and a head pass, each instrumented with every hooks.Point the
// pipeline names. The returned Job is Fresh (or already Loaded when info
// holds no tokens); call Load then Submit then Back to run it.
func (b *Builder) Build(st state.State, info InferInfo) (*Job, error) {
	if len(info) != st.NumBatch() {
		return nil, rwkverr.BatchSizeMismatchf(len(info), st.NumBatch())
	}

	numToken := info.NumToken()
	tokensPerBatch := info.TokensPerBatch()
	redirect := info.BuildRedirect()

	j := &Job{
		builder:        b,
		state:          st,
		tokens:         info,
		tokensPerBatch: tokensPerBatch,
		redirect:       redirect,
		numBatch:       len(info),
	}
	if numToken == 0 {
		j.stage = Loaded // nothing to record or load; Submit/Back are immediate no-ops
		return j, nil
	}

	cat := b.catalogOrDefault()
	m := b.Model
	mi := m.Info
	cursors := catalog.BuildCursors(tokensPerBatch)
	turbo := numToken%MinTokenChunkSize == 0

	rt, err := newRuntime(b.Dev, mi, numToken)
	if err != nil {
		return nil, fmt.Errorf("allocate runtime: %w", err)
	}
	if err := b.allocHead(rt, mi, numToken, len(redirect.Headers)); err != nil {
		return nil, fmt.Errorf("allocate head: %w", err)
	}
	j.runtime = rt
	j.turbo = turbo
	j.cursors = cursors

	cmds := make([]device.CommandBuffer, mi.NumLayer+2)
	cmds[0] = device.CommandBuffer{PassID: 0, Ops: b.recordPrelude(j, cat)}

	recordOneLayer := func(l int) error {
		layerOps, err := b.recordLayer(j, cat, l)
		if err != nil {
			return err
		}
		cmds[l+1] = device.CommandBuffer{PassID: uint64(l + 1), Ops: layerOps}
		return nil
	}
	if b.Pool != nil {
		if err := b.Pool.Run(mi.NumLayer, recordOneLayer); err != nil {
			return nil, fmt.Errorf("record layers: %w", err)
		}
	} else {
		for l := 0; l < mi.NumLayer; l++ {
			if err := recordOneLayer(l); err != nil {
				return nil, fmt.Errorf("record layer %d: %w", l, err)
			}
		}
	}

	cmds[mi.NumLayer+1] = device.CommandBuffer{
		PassID: uint64(mi.NumLayer + 1),
		Ops:    b.recordHead(j, cat, len(redirect.Headers)),
	}

	sortByPassID(cmds)
	j.cmds = cmds
	return j, nil
}

// sortByPassID re-establishes submission order after (possibly)
// concurrent recording; insertion sort is enough since cmds is already
// nearly sorted (each slot is written to its own PassID-matching index).
func sortByPassID(cmds []device.CommandBuffer) {
	for i := 1; i < len(cmds); i++ {
		for k := i; k > 0 && cmds[k].PassID < cmds[k-1].PassID; k-- {
			cmds[k], cmds[k-1] = cmds[k-1], cmds[k]
		}
	}
}

func (b *Builder) allocHead(rt *Runtime, info model.Info, numToken, numHeaders int) error {
	if numHeaders == 0 {
		return nil
	}
	if numHeaders == numToken || numToken == 1 {
		rt.HeadX = rt.Input
	} else {
		headX, err := newF32(b.Dev, info, numHeaders)
		if err != nil {
			return err
		}
		rt.HeadX = headX
	}
	shape := tensor.NewShape(info.NumVocab, numHeaders, 1, 1)
	buf, err := b.Dev.NewBuffer(shape.Len()*4, tensor.UsageStorage|tensor.UsageCopySrc|tensor.UsageCopyDst)
	if err != nil {
		return err
	}
	logits, err := tensor.NewDeviceTensor[float32](shape, buf, 0)
	if err != nil {
		return err
	}
	rt.Logits = logits
	return nil
}

func (b *Builder) hook(j *Job, point hooks.Point, layer int, buf, hdr *catalog.F32Tensor) device.Op {
	return b.Hooks.Lookup(point, layer, hooks.Frame{State: j.state, Buffer: buf, Header: hdr})
}

// recordPrelude builds the call's embedding lookup (reading the actual
// token ids off j.tokens lazily, at op-run time, so a Job can be Loaded
// again with different token content on a later call without
// re-recording) followed by the embedding layer-norm.
func (b *Builder) recordPrelude(j *Job, cat catalog.Catalog) []device.Op {
	rt := j.runtime
	m := b.Model
	var steps []device.Op
	push := func(op device.Op) {
		if op != nil {
			steps = append(steps, op)
		}
	}
	push(func() error { return embedHost(m, j.tokens, rt.Input) })
	push(b.hook(j, hooks.PostEmbedLoaded, -1, rt.Input, nil))
	push(cat.LayerNorm(m.EmbedLnW, m.EmbedLnB, rt.Input, nil, LayerNormEps))
	push(b.hook(j, hooks.PostEmbedLayerNorm, -1, rt.Input, nil))
	return steps
}

// embedHost gathers one embedding row per token directly from the
// model's host-resident table into out, the host-embed path spec.md §4.2
// allows in place of a device-side Embed dispatch.
func embedHost(m *model.Model, tokens InferInfo, out *catalog.F32Tensor) error {
	numEmb := m.Info.NumEmb
	data := make([]float32, out.Shape().Len())
	table := m.EmbedHost.Data()
	t := 0
	for _, chunk := range tokens {
		for _, id := range chunk.Tokens {
			for c := 0; c < numEmb; c++ {
				data[t*numEmb+c] = numeric.ToFloat32(table[int(id)*numEmb+c])
			}
			t++
		}
	}
	host, err := tensor.NewHostTensor[float32](out.Shape(), data)
	if err != nil {
		return err
	}
	return out.WriteHost(host)
}

// recordLayer builds one model layer's full attention + feed-forward
// pass. Safe to call concurrently for distinct l: it only reads
// b.Model.Layers[l] and st.Att(l)/st.Ffn(l), and writes into Runtime
// fields that are shared across layers but never touched until Submit
// runs the ops in PassID order.
func (b *Builder) recordLayer(j *Job, cat catalog.Catalog, l int) ([]device.Op, error) {
	rt := j.runtime
	m := b.Model
	mi := m.Info
	layer := m.Layers[l]

	att, err := j.state.Att(l)
	if err != nil {
		return nil, err
	}
	ffnShift, err := j.state.Ffn(l)
	if err != nil {
		return nil, err
	}

	var attShift, attAccum *catalog.F32Tensor
	if mi.Version == model.V5 {
		attShift, attAccum, err = state.SplitAttV5(att, mi)
	} else {
		attShift, err = att.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(0, 1), tensor.Full(), tensor.Full()})
		if err == nil {
			attAccum, err = att.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(1, 4), tensor.Full(), tensor.Full()})
		}
	}
	if err != nil {
		return nil, err
	}

	var steps []device.Op
	push := func(op device.Op) {
		if op != nil {
			steps = append(steps, op)
		}
	}

	push(b.hook(j, hooks.PreAtt, l, rt.Input, nil))
	push(cat.Blit(rt.Input, rt.AttX))
	push(cat.LayerNorm(layer.Att.LayerNormW, layer.Att.LayerNormB, rt.AttX, nil, LayerNormEps))
	push(b.hook(j, hooks.PostAttLayerNorm, l, rt.AttX, nil))

	push(b.hook(j, hooks.PreAttTokenShift, l, rt.AttX, nil))
	push(cat.TokenShift(j.cursors, layer.Att.TimeMixK, attShift, rt.AttX, rt.AttKx, false))
	push(cat.TokenShift(j.cursors, layer.Att.TimeMixV, attShift, rt.AttX, rt.AttVx, false))
	push(cat.TokenShift(j.cursors, layer.Att.TimeMixR, attShift, rt.AttX, rt.AttRx, false))
	push(b.hook(j, hooks.PostAttTokenShift, l, rt.AttX, nil))

	push(b.hook(j, hooks.PreAttLinear, l, rt.AttKx, nil))
	push(cat.Matmul(layer.Att.WK, rt.AttKx, rt.AttK, catalog.None, j.turbo))
	push(cat.Matmul(layer.Att.WV, rt.AttVx, rt.AttV, catalog.None, j.turbo))
	push(cat.Matmul(layer.Att.WR, rt.AttRx, rt.AttR, catalog.None, j.turbo))
	push(b.hook(j, hooks.PostAttLinear, l, rt.AttK, nil))

	push(b.hook(j, hooks.PreAttTimeMix, l, rt.AttK, nil))
	if mi.Version == model.V5 {
		push(cat.TimeMixV5(mi.HeadSize, j.cursors, layer.Att.TimeDecay, layer.Att.TimeFirst, attAccum, rt.AttK, rt.AttV, rt.AttR, rt.AttMix))
	} else {
		push(cat.TimeMixV4(j.cursors, layer.Att.TimeDecay, layer.Att.TimeFirst, attAccum, rt.AttK, rt.AttV, rt.AttR, rt.AttMix))
	}
	push(b.hook(j, hooks.PostAttTimeMix, l, rt.AttMix, nil))

	push(b.hook(j, hooks.PreAttOut, l, rt.AttMix, nil))
	push(cat.Matmul(layer.Att.WO, rt.AttMix, rt.AttO, catalog.None, j.turbo))
	push(cat.Add(rt.Input, rt.AttO))
	push(b.hook(j, hooks.PostAttOut, l, rt.Input, nil))
	push(cat.Blit(rt.Input, rt.FfnX))
	push(cat.Blit(rt.Input, rt.FfnResidual))
	push(b.hook(j, hooks.PostAtt, l, rt.Input, nil))

	push(b.hook(j, hooks.PreFfn, l, rt.FfnX, nil))
	push(cat.LayerNorm(layer.Ffn.LayerNormW, layer.Ffn.LayerNormB, rt.FfnX, nil, LayerNormEps))
	push(b.hook(j, hooks.PostFfnLayerNorm, l, rt.FfnX, nil))

	push(b.hook(j, hooks.PreFfnTokenShift, l, rt.FfnX, nil))
	push(cat.TokenShift(j.cursors, layer.Ffn.TimeMixK, ffnShift, rt.FfnX, rt.FfnKx, false))
	push(cat.TokenShift(j.cursors, layer.Ffn.TimeMixR, ffnShift, rt.FfnX, rt.FfnRx, false))
	push(b.hook(j, hooks.PostFfnTokenShift, l, rt.FfnX, nil))

	push(b.hook(j, hooks.PreFfnLinear, l, rt.FfnKx, nil))
	push(cat.Matmul(layer.Ffn.WK, rt.FfnKx, rt.FfnK, catalog.SquaredReLU, j.turbo))
	push(b.hook(j, hooks.PostFfnActivate, l, rt.FfnK, nil))
	push(cat.Matmul(layer.Ffn.WV, rt.FfnK, rt.FfnV, catalog.None, j.turbo))
	push(cat.Matmul(layer.Ffn.WR, rt.FfnRx, rt.FfnR, catalog.None, j.turbo))
	push(b.hook(j, hooks.PostFfnLinear, l, rt.FfnV, nil))

	push(b.hook(j, hooks.PreFfnChannelMix, l, rt.FfnV, nil))
	push(cat.ChannelMix(j.cursors, ffnShift, rt.FfnR, rt.FfnV, rt.FfnX))
	push(b.hook(j, hooks.PostFfnChannelMix, l, rt.FfnX, nil))

	push(cat.Add(rt.FfnResidual, rt.FfnX))
	if (l+1)%model.RescaleLayer == 0 {
		push(cat.Discount(rt.FfnResidual, 0.5))
	}
	push(cat.Blit(rt.FfnResidual, rt.Input))
	push(b.hook(j, hooks.PostFfn, l, rt.Input, nil))

	return steps, nil
}

// recordHead builds the final layer-norm + head projection. With no
// requested batches it records nothing; with every token requested (or
// only one token total) it runs the head input in place on Input,
// skipping the compaction Blit.
func (b *Builder) recordHead(j *Job, cat catalog.Catalog, numHeaders int) []device.Op {
	if numHeaders == 0 {
		return nil
	}
	rt := j.runtime
	m := b.Model

	var steps []device.Op
	push := func(op device.Op) {
		if op != nil {
			steps = append(steps, op)
		}
	}

	push(b.hook(j, hooks.PreHead, -1, rt.Input, nil))
	if rt.HeadX != rt.Input {
		ops := make([]device.Op, len(j.redirect.Headers))
		for slot, pos := range j.redirect.Headers {
			src, err := rt.Input.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(pos, pos+1), tensor.Full(), tensor.Full()})
			if err != nil {
				ops[slot] = func() error { return err }
				continue
			}
			dst, err := rt.HeadX.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(slot, slot+1), tensor.Full(), tensor.Full()})
			if err != nil {
				ops[slot] = func() error { return err }
				continue
			}
			ops[slot] = cat.Blit(src, dst)
		}
		push(cat.List(ops...))
	}
	push(cat.LayerNorm(m.HeadLnW, m.HeadLnB, rt.HeadX, nil, LayerNormEps))
	push(b.hook(j, hooks.PostHeadLayerNorm, -1, rt.HeadX, nil))
	push(cat.Matmul(m.Head, rt.HeadX, rt.Logits, catalog.None, j.turbo))
	push(b.hook(j, hooks.PostHead, -1, rt.Logits, rt.Logits))
	return steps
}
