// Package ops is the operation catalog spec.md §6 treats as an external,
// black-box collaborator: a library of named tensor operations that each
// return a recordable device.Op. The job builder never computes anything
// itself — it only calls into this catalog and appends the returned op
// to the pass it is recording. This package supplies a CPU reference
// implementation of that catalog so the rest of the runtime has
// something concrete to build and test against.
package ops

import (
	"math"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/matrix"
)

// Activation selects the fused activation a matmul applies to its
// output before returning.
type Activation int

const (
	None Activation = iota
	SquaredReLU
)

func applyActivation(v float32, a Activation) float32 {
	switch a {
	case SquaredReLU:
		if v < 0 {
			return 0
		}
		return v * v
	default:
		return v
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// F32Tensor and F16Tensor are the two DeviceTensor instantiations every
// catalog entry operates on: activations are fixed to f32 end to end
// (the reference implementation's own Float dispatch is per-job, not
// per-op; collapsing it to a single concrete kind keeps this catalog
// readable without changing any observable op semantics), while learned
// vectors (layer-norm gain/bias, mix vectors, embedding rows) stay f16
// as the data model lists them.
type F32Tensor = tensor.DeviceTensor[float32]
type F16Tensor = tensor.DeviceTensor[numeric.Float16]
type U16Tensor = tensor.DeviceTensor[uint16] // token ids, per InferInfo's u16 tokens
type U32Tensor = tensor.DeviceTensor[uint32]  // cursors

// Catalog is the set of operations the job builder records against.
// CPU is the only implementation; the interface exists so job-building
// code depends on a contract rather than a concrete backend.
type Catalog interface {
	Embed(tokens *U16Tensor, table *F16Tensor, out *F32Tensor) device.Op
	LayerNorm(w, b *F16Tensor, x *F32Tensor, bias *F32Tensor, eps float32) device.Op
	TokenShift(cursors []Cursor, mix *F16Tensor, stateView *F32Tensor, x, out *F32Tensor, reverse bool) device.Op
	Matmul(m matrix.Matrix, x, out *F32Tensor, activation Activation, turbo bool) device.Op
	TimeMixV4(cursors []Cursor, decay, first *F32Tensor, stateView *F32Tensor, k, v, r, out *F32Tensor) device.Op
	TimeMixV5(headSize int, cursors []Cursor, decay, first *F32Tensor, stateView *F32Tensor, k, v, r, out *F32Tensor) device.Op
	ChannelMix(cursors []Cursor, stateView *F32Tensor, r, v, out *F32Tensor) device.Op
	Add(acc, addend *F32Tensor) device.Op
	Blit(src, dst *F32Tensor) device.Op
	Discount(x *F32Tensor, factor float32) device.Op
	List(ops ...device.Op) device.Op
	Empty() device.Op
}

// CPU is the reference Catalog, executing every op synchronously in
// Go rather than dispatching a compute-shader pass.
type CPU struct{}

func (CPU) Empty() device.Op { return func() error { return nil } }

func (CPU) List(ops ...device.Op) device.Op {
	return func() error {
		for _, op := range ops {
			if op == nil {
				continue
			}
			if err := op(); err != nil {
				return err
			}
		}
		return nil
	}
}

// Embed gathers one embedding row per token: out[:,t] = table[:,tokens[t]].
func (CPU) Embed(tokens *U16Tensor, table *F16Tensor, out *F32Tensor) device.Op {
	return func() error {
		tokHost, err := tokens.ReadHost()
		if err != nil {
			return err
		}
		tableHost, err := table.ReadHost()
		if err != nil {
			return err
		}
		outHost, err := out.ReadHost()
		if err != nil {
			return err
		}
		numEmb := out.Shape()[0]
		numTok := out.Shape()[1]
		od := outHost.Data()
		td := tableHost.Data()
		ids := tokHost.Data()
		for t := 0; t < numTok; t++ {
			id := int(ids[t])
			for c := 0; c < numEmb; c++ {
				od[t*numEmb+c] = numeric.ToFloat32(td[id*numEmb+c])
			}
		}
		return out.WriteHost(outHost)
	}
}

// LayerNorm normalizes each token's num_emb-wide column in place, then
// scales by w, shifts by b, and optionally adds a residual bias tensor
// of the same shape as x.
func (CPU) LayerNorm(w, b *F16Tensor, x *F32Tensor, bias *F32Tensor, eps float32) device.Op {
	return func() error {
		wHost, err := w.ReadHost()
		if err != nil {
			return err
		}
		bHost, err := b.ReadHost()
		if err != nil {
			return err
		}
		xHost, err := x.ReadHost()
		if err != nil {
			return err
		}
		var biasData []float32
		if bias != nil {
			biasHost, err := bias.ReadHost()
			if err != nil {
				return err
			}
			biasData = biasHost.Data()
		}
		numEmb := x.Shape()[0]
		numTok := x.Shape()[1]
		xd := xHost.Data()
		wd := wHost.Data()
		bd := bHost.Data()
		for t := 0; t < numTok; t++ {
			col := xd[t*numEmb : (t+1)*numEmb]
			var mean float32
			for _, v := range col {
				mean += v
			}
			mean /= float32(numEmb)
			var variance float32
			for _, v := range col {
				d := v - mean
				variance += d * d
			}
			variance /= float32(numEmb)
			inv := float32(1 / math.Sqrt(float64(variance)+float64(eps)))
			for c := range col {
				norm := (col[c] - mean) * inv
				col[c] = norm*numeric.ToFloat32(wd[c]) + numeric.ToFloat32(bd[c])
				if biasData != nil {
					col[c] += biasData[t*numEmb+c]
				}
			}
		}
		return x.WriteHost(xHost)
	}
}

// TokenShift interpolates each token's activation with the previous
// token's (within the same batch), pulling the batch's carried value out
// of stateView for the first token and writing the last token's value
// back into stateView for the next job. reverse is accepted for contract
// parity with the external catalog; every call site in this runtime
// passes false (forward token-shift is the only direction V4/V5 use).
func (CPU) TokenShift(cursors []Cursor, mix *F16Tensor, stateView *F32Tensor, x, out *F32Tensor, reverse bool) device.Op {
	return func() error {
		mixHost, err := mix.ReadHost()
		if err != nil {
			return err
		}
		xHost, err := x.ReadHost()
		if err != nil {
			return err
		}
		stateHost, err := stateView.ReadHost()
		if err != nil {
			return err
		}
		numEmb := x.Shape()[0]
		numTok := x.Shape()[1]
		md := mixHost.Data()
		xd := xHost.Data()
		sd := stateHost.Data() // shape (num_emb,1,B,1)
		outData := make([]float32, numTok*numEmb)

		for t := 0; t < numTok; t++ {
			batch, within, _ := cursors[t].Decode()
			col := xd[t*numEmb : (t+1)*numEmb]
			var prev []float32
			if within == 0 {
				prev = sd[batch*numEmb : (batch+1)*numEmb]
			} else {
				prev = xd[(t-1)*numEmb : t*numEmb]
			}
			for c := 0; c < numEmb; c++ {
				m := numeric.ToFloat32(md[c])
				outData[t*numEmb+c] = col[c]*m + prev[c]*(1-m)
			}
		}
		for t := 0; t < numTok; t++ {
			_, within, length := cursors[t].Decode()
			if within == length-1 {
				batch, _, _ := cursors[t].Decode()
				copy(sd[batch*numEmb:(batch+1)*numEmb], xd[t*numEmb:(t+1)*numEmb])
			}
		}
		outHost, err := tensor.NewHostTensor[float32](out.Shape(), outData)
		if err != nil {
			return err
		}
		if err := out.WriteHost(outHost); err != nil {
			return err
		}
		return stateView.WriteHost(stateHost)
	}
}

// Matmul computes out[:,t] = M * x[:,t] for every token, applying the
// fused activation afterward. turbo only selects a kernel variant on a
// real backend; behavior here is identical regardless of its value.
func (CPU) Matmul(m matrix.Matrix, x, out *F32Tensor, activation Activation, turbo bool) device.Op {
	return func() error {
		xHost, err := x.ReadHost()
		if err != nil {
			return err
		}
		numTok := x.Shape()[1]
		cols, rows := m.Cols(), m.Rows()
		xd := xHost.Data()
		outData := make([]float32, numTok*rows)
		tokOut := make([]float32, rows)
		for t := 0; t < numTok; t++ {
			m.MulInto(xd[t*cols:(t+1)*cols], tokOut)
			for r := 0; r < rows; r++ {
				outData[t*rows+r] = applyActivation(tokOut[r], activation)
			}
		}
		outHost, err := tensor.NewHostTensor[float32](out.Shape(), outData)
		if err != nil {
			return err
		}
		return out.WriteHost(outHost)
	}
}

// TimeMixV4 is the numerically-stable WKV recurrence: for each channel,
// blend the running (aa,bb,pp) accumulator with the new (k,v) using a
// shared-max rescaling, gate the result by sigmoid(r), then advance the
// accumulator with the per-channel decay.
func (CPU) TimeMixV4(cursors []Cursor, decay, first *F32Tensor, stateView *F32Tensor, k, v, r, out *F32Tensor) device.Op {
	return func() error {
		decayHost, err := decay.ReadHost()
		if err != nil {
			return err
		}
		firstHost, err := first.ReadHost()
		if err != nil {
			return err
		}
		stateHost, err := stateView.ReadHost()
		if err != nil {
			return err
		}
		kHost, err := k.ReadHost()
		if err != nil {
			return err
		}
		vHost, err := v.ReadHost()
		if err != nil {
			return err
		}
		rHost, err := r.ReadHost()
		if err != nil {
			return err
		}

		numEmb := k.Shape()[0]
		numTok := k.Shape()[1]
		w := decayHost.Data()
		u := firstHost.Data()
		// stateView shape (num_emb,3,B,1): channel 0=aa,1=bb,2=pp.
		sd := stateHost.Data()
		sShape := stateHost.Shape()
		kd, vd, rd := kHost.Data(), vHost.Data(), rHost.Data()
		outData := make([]float32, numTok*numEmb)

		aaOf := func(b, c int) *float32 { return &sd[sShape.Index(c, 0, b, 0)] }
		bbOf := func(b, c int) *float32 { return &sd[sShape.Index(c, 1, b, 0)] }
		ppOf := func(b, c int) *float32 { return &sd[sShape.Index(c, 2, b, 0)] }

		for t := 0; t < numTok; t++ {
			batch, _, _ := cursors[t].Decode()
			for c := 0; c < numEmb; c++ {
				kc := kd[t*numEmb+c]
				vc := vd[t*numEmb+c]
				aa := *aaOf(batch, c)
				bb := *bbOf(batch, c)
				pp := *ppOf(batch, c)

				ww := u[c] + kc
				q := maxf(pp, ww)
				e1 := float32(math.Exp(float64(pp - q)))
				e2 := float32(math.Exp(float64(ww - q)))
				wkv := (e1*aa + e2*vc) / (e1*bb + e2)
				outData[t*numEmb+c] = wkv * sigmoid(rd[t*numEmb+c])

				ww2 := pp + w[c]
				q2 := maxf(ww2, kc)
				e1b := float32(math.Exp(float64(ww2 - q2)))
				e2b := float32(math.Exp(float64(kc - q2)))
				*aaOf(batch, c) = e1b*aa + e2b*vc
				*bbOf(batch, c) = e1b*bb + e2b
				*ppOf(batch, c) = q2
			}
		}
		outHost, err := tensor.NewHostTensor[float32](out.Shape(), outData)
		if err != nil {
			return err
		}
		if err := out.WriteHost(outHost); err != nil {
			return err
		}
		return stateView.WriteHost(stateHost)
	}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// TimeMixV5 runs the per-head matrix recurrence: y = r . (S + diag(u).(k
// outer v)), then S = diag(exp(w)).S + k outer v, independently per head
// and per batch. decay holds the log-decay w (-exp(raw) from the loader),
// so exp(w) is the per-channel decay factor in (0,1).
func (CPU) TimeMixV5(headSize int, cursors []Cursor, decay, first *F32Tensor, stateView *F32Tensor, k, v, r, out *F32Tensor) device.Op {
	return func() error {
		decayHost, err := decay.ReadHost()
		if err != nil {
			return err
		}
		firstHost, err := first.ReadHost()
		if err != nil {
			return err
		}
		stateHost, err := stateView.ReadHost()
		if err != nil {
			return err
		}
		kHost, err := k.ReadHost()
		if err != nil {
			return err
		}
		vHost, err := v.ReadHost()
		if err != nil {
			return err
		}
		rHost, err := r.ReadHost()
		if err != nil {
			return err
		}

		numEmb := k.Shape()[0]
		numHeads := numEmb / headSize
		numTok := k.Shape()[1]
		w := decayHost.Data()
		u := firstHost.Data()
		kd, vd, rd := kHost.Data(), vHost.Data(), rHost.Data()
		// stateView shape (head_size, head_size*num_heads, 1, B): for head
		// h the matrix block occupies axis-1 columns
		// [h*head_size,(h+1)*head_size); axis 2 is the caller's
		// already-restricted layer slot (size 1), axis 3 is batch.
		sShape := stateHost.Shape()
		sd := stateHost.Data()
		numBatch := sShape[3]
		idx := func(i, col, b int) int { return sShape.Index(i, col, 0, b) }
		outData := make([]float32, numTok*numEmb)

		for t := 0; t < numTok; t++ {
			batch, _, _ := cursors[t].Decode()
			if batch >= numBatch {
				continue
			}
			for h := 0; h < numHeads; h++ {
				base := h * headSize
				kh := kd[t*numEmb+base : t*numEmb+base+headSize]
				vh := vd[t*numEmb+base : t*numEmb+base+headSize]
				rh := rd[t*numEmb+base : t*numEmb+base+headSize]
				wh := w[base : base+headSize]
				uh := u[base : base+headSize]
				yh := outData[t*numEmb+base : t*numEmb+base+headSize]

				for j := 0; j < headSize; j++ {
					var y float32
					for i := 0; i < headSize; i++ {
						s := sd[idx(i, base+j, batch)]
						y += rh[i] * (s + uh[i]*kh[i]*vh[j])
					}
					yh[j] = y
				}
				for i := 0; i < headSize; i++ {
					decay := float32(math.Exp(float64(wh[i])))
					for j := 0; j < headSize; j++ {
						p := idx(i, base+j, batch)
						sd[p] = decay*sd[p] + kh[i]*vh[j]
					}
				}
			}
		}
		outHost, err := tensor.NewHostTensor[float32](out.Shape(), outData)
		if err != nil {
			return err
		}
		if err := out.WriteHost(outHost); err != nil {
			return err
		}
		return stateView.WriteHost(stateHost)
	}
}

// ChannelMix gates v by sigmoid(r) elementwise. stateView is accepted
// for signature parity with TimeMix (the external catalog threads state
// through every recurrent op uniformly); channel-mix's only recurrence
// is the token-shift already applied upstream, so it is unused here.
func (CPU) ChannelMix(cursors []Cursor, stateView *F32Tensor, r, v, out *F32Tensor) device.Op {
	return func() error {
		rHost, err := r.ReadHost()
		if err != nil {
			return err
		}
		vHost, err := v.ReadHost()
		if err != nil {
			return err
		}
		rd, vd := rHost.Data(), vHost.Data()
		outData := make([]float32, len(vd))
		for i := range outData {
			outData[i] = sigmoid(rd[i]) * vd[i]
		}
		outHost, err := tensor.NewHostTensor[float32](out.Shape(), outData)
		if err != nil {
			return err
		}
		return out.WriteHost(outHost)
	}
}

// Add accumulates acc += addend elementwise, in place on acc.
func (CPU) Add(acc, addend *F32Tensor) device.Op {
	return func() error {
		accHost, err := acc.ReadHost()
		if err != nil {
			return err
		}
		addHost, err := addend.ReadHost()
		if err != nil {
			return err
		}
		ad, bd := accHost.Data(), addHost.Data()
		for i := range ad {
			ad[i] += bd[i]
		}
		return acc.WriteHost(accHost)
	}
}

// Blit copies src's contents into dst, the sub-region copy the job
// builder uses to compact only the requested header positions out of a
// full per-token tensor.
func (CPU) Blit(src, dst *F32Tensor) device.Op {
	return func() error { return tensor.CopyTensor(src, dst) }
}

// Discount multiplies every element of x by factor in place, the
// periodic residual-stream rescale RESCALE_LAYER triggers.
func (CPU) Discount(x *F32Tensor, factor float32) device.Op {
	return func() error {
		host, err := x.ReadHost()
		if err != nil {
			return err
		}
		d := host.Data()
		for i := range d {
			d[i] *= factor
		}
		return x.WriteHost(host)
	}
}

// Softmax applies a numerically-stable softmax to every present slot,
// passing nil slots through unchanged. This is one of the runtime's
// suspension points (spec: a single batched device dispatch); the CPU
// reference computes it directly rather than deferring through an Op.
func Softmax(xs [][]float32) [][]float32 {
	out := make([][]float32, len(xs))
	for i, x := range xs {
		if x == nil {
			continue
		}
		max := x[0]
		for _, v := range x[1:] {
			if v > max {
				max = v
			}
		}
		exp := make([]float32, len(x))
		var sum float32
		for j, v := range x {
			e := float32(math.Exp(float64(v - max)))
			exp[j] = e
			sum += e
		}
		for j := range exp {
			exp[j] /= sum
		}
		out[i] = exp
	}
	return out
}
