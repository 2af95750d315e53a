// Package hooks implements the instrumentation hook surface: a mapping
// from a named pipeline point to a user-supplied op producer, consulted
// by the job builder between every pair of named sub-steps. A missing
// entry is a zero-cost no-op.
package hooks

import (
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
)

// Point identifies one named pipeline location. Per-layer points are
// parameterized by a layer index at lookup time, not at the Point's own
// identity, so the same small enum covers every layer.
type Point int

const (
	PostEmbedLoaded Point = iota
	PostEmbedLayerNorm

	PreAtt
	PostAttLayerNorm
	PreAttTokenShift
	PostAttTokenShift
	PreAttLinear
	PostAttLinear
	PreAttTimeMix
	PostAttTimeMix
	PreAttOut
	PostAttOut
	PostAtt

	PreFfn
	PostFfnLayerNorm
	PreFfnTokenShift
	PostFfnTokenShift
	PreFfnLinear
	PostFfnActivate
	PostFfnLinear
	PreFfnChannelMix
	PostFfnChannelMix
	PostFfn

	PreHead
	PostHeadLayerNorm
	PostHead
)

// key addresses one (Point, layer) pair. Non-layer points use layer -1.
type key struct {
	point Point
	layer int
}

// Frame is passed to every hook producer: the live state, the working
// runtime buffer the pass is currently operating on, and the header
// tensor (valid only around the head pass).
type Frame struct {
	State  any // state.State, typed any to avoid an import cycle with the state package
	Buffer *tensor.DeviceTensor[float32]
	Header *tensor.DeviceTensor[float32]
}

// Producer returns the op to splice in for one invocation of a hook
// point, given the current frame.
type Producer func(Frame) device.Op

// Map is a read-only-after-build table of hook points to producers,
// cheap to share with worker-pool goroutines during parallel recording.
type Map struct {
	entries map[key]Producer
}

// NewMap returns an empty hook table; every lookup is a no-op until
// entries are registered with Set.
func NewMap() *Map {
	return &Map{entries: make(map[key]Producer)}
}

// Set registers producer for (point, layer). layer is ignored (pass -1)
// for points that are not per-layer.
func (m *Map) Set(point Point, layer int, producer Producer) {
	m.entries[key{point, layer}] = producer
}

// Lookup returns the op to splice in for (point, layer) under frame, or
// a nil Op (the builder treats nil as "record nothing") if no producer
// is registered.
func (m *Map) Lookup(point Point, layer int, frame Frame) device.Op {
	if m == nil {
		return nil
	}
	if p, ok := m.entries[key{point, layer}]; ok {
		return p(frame)
	}
	return nil
}
