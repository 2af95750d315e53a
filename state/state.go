// Package state implements the mutable recurrent context spec.md §3/§4.2
// describes: one device tensor holding B parallel batches, with
// per-layer attention/feed-forward sub-views, initialization, per-batch
// load/readback, deep clone, and whole- or per-batch blit between two
// states of matching topology.
package state

import (
	"math"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/model"
)

// State is the common contract both the V4 and V5 layouts implement, so
// the job builder and runtime facade can stay version-agnostic.
type State interface {
	NumBatch() int
	Att(layer int) (*tensor.DeviceTensor[float32], error)
	Ffn(layer int) (*tensor.DeviceTensor[float32], error)
	Load(batch int, host *tensor.HostTensor[float32]) error
	Back(batch int) (*tensor.HostTensor[float32], error)
	Blit(other State) error
	BlitBatch(other State, from, to int) error
	DeepClone() (State, error)
	Shape() tensor.Shape
	Info() model.Info
}

// Checkpoint is one batch's state, backed to host memory and tagged with
// enough shape/version metadata that a store can reject a Restore against
// an incompatible State before ever touching its buffer.
type Checkpoint struct {
	Version model.Version
	Shape   tensor.Shape
	Data    []float32
}

// Snapshot backs batch up into a Checkpoint, the durable form State.Load
// can later restore from (including across process restarts, once a
// Checkpoint has been round-tripped through a store).
func Snapshot(s State, batch int) (Checkpoint, error) {
	host, err := s.Back(batch)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{Version: s.Info().Version, Shape: host.Shape(), Data: host.Data()}, nil
}

// Restore loads cp into batch, rejecting a Checkpoint whose version or
// per-batch shape does not match s.
func Restore(s State, batch int, cp Checkpoint) error {
	info := s.Info()
	if cp.Version != info.Version {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "restore: checkpoint version %s does not match state version %s", cp.Version, info.Version)
	}
	wantBatchShape, err := perBatchShape(s)
	if err != nil {
		return err
	}
	if cp.Shape != wantBatchShape {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "restore: checkpoint shape %v does not match state's per-batch shape %v", cp.Shape, wantBatchShape)
	}
	host, err := tensor.NewHostTensor[float32](cp.Shape, cp.Data)
	if err != nil {
		return err
	}
	return s.Load(batch, host)
}

// perBatchShape derives the shape State.Back/Load operate on: the full
// state shape with its batch axis collapsed to one.
func perBatchShape(s State) (tensor.Shape, error) {
	full := s.Shape()
	switch info := s.Info(); info.Version {
	case model.V5:
		return tensor.NewShape(full[0], full[1], full[2], 1), nil
	default:
		return tensor.NewShape(full[0], full[1], 1, full[3]), nil
	}
}

// InitHost returns the canonical per-batch zero state for info's
// version, with V4's pp channel seeded to a large-negative surrogate for
// -inf so the first max-reduction in time-mix is numerically correct.
func InitHost(info model.Info) (*tensor.HostTensor[float32], error) {
	if info.Version == model.V5 {
		shape := v5StateShape(info, 1)
		return tensor.NewHostTensor[float32](shape, make([]float32, shape.Len()))
	}
	shape := tensor.NewShape(info.NumEmb, 5*info.NumLayer, 1, 1)
	data := make([]float32, shape.Len())
	for l := 0; l < info.NumLayer; l++ {
		ppChannel := 5*l + 3
		for c := 0; c < info.NumEmb; c++ {
			data[shape.Index(c, ppChannel, 0, 0)] = -math.MaxFloat32
		}
	}
	return tensor.NewHostTensor[float32](shape, data)
}

// v5StateShape is (head_size, num_heads*(head_size+2), num_layer, B).
// Each layer's axis-1 block of width num_heads*(head_size+2) is three
// contiguous sections, each reshaped so a (head_size, num_heads) pair of
// axes reproduces the flat layout a (num_emb,...) vector would have
// (num_emb = head_size*num_heads, and this tensor's axis-0-fastest
// indexing already matches a num_emb-wide vector's), letting a single
// contiguous Range pull out a full num_emb-wide vector without a second
// restricted axis:
//   - [0, num_heads): attention's own token-shift vector (num_emb-wide)
//   - [num_heads, num_heads*(1+head_size)): the per-head recurrence
//     matrix S, head h at columns [num_heads+h*head_size, num_heads+(h+1)*head_size)
//   - [num_heads*(1+head_size), num_heads*(head_size+2)): the
//     feed-forward token-shift vector (num_emb-wide)
//
// This is the topological equivalent spec.md §3 allows in place of its
// literal (num_emb, head_size+2, num_heads*num_layer, B): restricting
// axis 2 (layer) gives each layer's full block in one view, matching
// V4's "one axis restricted per view" pattern instead of requiring two,
// and Att/Ffn each pull their slice out of that block with one further
// contiguous axis-1 Range.
func v5StateShape(info model.Info, numBatch int) tensor.Shape {
	headSize := info.HeadSize
	numHeads := info.NumHeads()
	return tensor.NewShape(headSize, numHeads*(headSize+2), info.NumLayer, numBatch)
}

// New allocates a fresh zero-initialized State on dev for numBatch
// batches, dispatching on info.Version.
func New(dev device.Device, info model.Info, numBatch int) (State, error) {
	switch info.Version {
	case model.V5:
		return newV5(dev, info, numBatch)
	default:
		return newV4(dev, info, numBatch)
	}
}

func checkBatch(batch, numBatch int) error {
	if batch < 0 || batch >= numBatch {
		return rwkverr.BatchOutOfRangef(batch, numBatch)
	}
	return nil
}
