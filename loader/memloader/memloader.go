// Package memloader is an in-memory implementation of model.Reader,
// standing in for the external model-file loader spec.md treats as a
// consumed collaborator. It resolves canonical tensor names against a
// map built up at construction time, which is what the CLI's
// synthetic/test model path and every package test in this module use
// instead of parsing a real checkpoint format.
package memloader

import (
	"fmt"
	"math"

	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/matrix"
	"github.com/cahya-wirawan/web-rwkv/model"
)

// Loader holds raw tensor payloads keyed by canonical name, plus the
// ModelInfo the builder needs to size everything else.
type Loader struct {
	info model.Info
	f16  map[string][]numeric.Float16
	f32  map[string][]float32
}

// New returns an empty Loader for the given model shape.
func New(info model.Info) *Loader {
	return &Loader{info: info, f16: map[string][]numeric.Float16{}, f32: map[string][]float32{}}
}

// PutF16 registers a raw f16 payload under name.
func (l *Loader) PutF16(name string, data []numeric.Float16) { l.f16[name] = data }

// PutF32 registers a raw f32 payload under name.
func (l *Loader) PutF32(name string, data []float32) { l.f32[name] = data }

func (l *Loader) Info() (model.Info, error) { return l.info, nil }

func (l *Loader) LoadVectorF16(name string) (*tensor.HostTensor[numeric.Float16], error) {
	data, ok := l.f16[name]
	if !ok {
		return nil, fmt.Errorf("memloader: no f16 tensor %q", name)
	}
	return tensor.NewHostTensor[numeric.Float16](tensor.NewShape(len(data), 1, 1, 1), data)
}

func (l *Loader) LoadVectorF32(name string) (*tensor.HostTensor[float32], error) {
	data, ok := l.f32[name]
	if !ok {
		return nil, fmt.Errorf("memloader: no f32 tensor %q", name)
	}
	return tensor.NewHostTensor[float32](tensor.NewShape(len(data), 1, 1, 1), data)
}

func (l *Loader) LoadVectorExpF32(name string) (*tensor.HostTensor[float32], error) {
	raw, ok := l.f32[name]
	if !ok {
		return nil, fmt.Errorf("memloader: no f32 tensor %q", name)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = -float32(math.Exp(float64(v)))
	}
	return tensor.NewHostTensor[float32](tensor.NewShape(len(out), 1, 1, 1), out)
}

func (l *Loader) LoadMatrix(name string) (*matrix.Dense, error) {
	data, ok := l.f16[name]
	if !ok {
		return nil, fmt.Errorf("memloader: no matrix tensor %q", name)
	}
	rows, cols := l.matrixShape(name)
	return matrix.NewDense(rows, cols, data)
}

func (l *Loader) LoadEmbed() (*tensor.HostTensor[numeric.Float16], error) {
	data, ok := l.f16["emb.weight"]
	if !ok {
		return nil, fmt.Errorf("memloader: no embedding table")
	}
	return tensor.NewHostTensor[numeric.Float16](tensor.NewShape(l.info.NumEmb, l.info.NumVocab, 1, 1), data)
}

// matrixShape infers (rows, cols) from the canonical name and the
// registered Info, since the memory loader does not carry per-tensor
// shape metadata the way a real checkpoint header would.
func (l *Loader) matrixShape(name string) (rows, cols int) {
	switch {
	case name == "head.weight":
		return l.info.NumVocab, l.info.NumEmb
	case suffix(name, ".att.output.weight"), suffix(name, ".ffn.receptance.weight"),
		suffix(name, ".att.key.weight"), suffix(name, ".att.value.weight"), suffix(name, ".att.receptance.weight"):
		return l.info.NumEmb, l.info.NumEmb
	case suffix(name, ".ffn.key.weight"):
		return l.info.NumHidden, l.info.NumEmb
	case suffix(name, ".ffn.value.weight"):
		return l.info.NumEmb, l.info.NumHidden
	default:
		return l.info.NumEmb, l.info.NumEmb
	}
}

func suffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}
