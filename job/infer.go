// Package job implements the per-request inference pass: turning an
// InferInfo (which tokens, which batches, which need logits) into a
// recorded sequence of device.CommandBuffers against a Model and a
// State, and the Fresh/Loaded/Submitted/Backed Job lifecycle that runs
// and reads back those buffers.
package job

// InferChunk is one batch's contribution to a single inference call: the
// tokens to feed through (possibly empty, meaning "this batch sits idle
// this call") and whether the caller wants logits for its last token.
type InferChunk struct {
	Tokens []uint16
	Output bool
}

// InferInfo is one call's full per-batch chunk list, in batch order.
type InferInfo []InferChunk

// NumToken is the total token count across every batch, the width every
// per-token runtime tensor is allocated to.
func (info InferInfo) NumToken() int {
	n := 0
	for _, c := range info {
		n += len(c.Tokens)
	}
	return n
}

// TokensPerBatch returns each batch's token count, in order, the shape
// ops.BuildCursors consumes.
func (info InferInfo) TokensPerBatch() []int {
	out := make([]int, len(info))
	for i, c := range info {
		out[i] = len(c.Tokens)
	}
	return out
}

// Redirect describes where each requested batch's logits land in the
// compacted header tensor: Headers holds the absolute (packed-sequence)
// position of each requested last token, in ascending order; Outputs
// maps batch index to its slot in Headers, or -1 if that batch asked for
// nothing (or had no tokens this call).
type Redirect struct {
	Headers []int
	Outputs []int
}

// BuildRedirect computes info's Redirect: the position of the last token
// of every batch that both has tokens and requested output, and the
// batch-to-slot mapping into that compacted list.
func (info InferInfo) BuildRedirect() Redirect {
	outputs := make([]int, len(info))
	var headers []int
	abs := 0
	for b, c := range info {
		n := len(c.Tokens)
		last := abs + n - 1
		abs += n
		if n == 0 || !c.Output {
			outputs[b] = -1
			continue
		}
		headers = append(headers, last)
		outputs[b] = len(headers) - 1
	}
	return Redirect{Headers: headers, Outputs: outputs}
}

// InferOutput is one call's result: a slice parallel to the InferInfo's
// batches, holding each requested batch's raw logits (softmax is left to
// the caller, via ops.Softmax) or nil for a batch that asked for
// nothing.
type InferOutput [][]float32
