package state

import (
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/model"
)

// v4State is (num_emb, 5*num_layer, B, 1): per layer, 5 channels packed
// as [shift(att), aa, bb, pp, shift(ffn)]. att(l) is axis-1 [5l,5l+4);
// ffn(l) is axis-1 [5l+4,5l+5).
type v4State struct {
	info     model.Info
	numBatch int
	dev      device.Device
	tensor   *tensor.DeviceTensor[float32]
}

func newV4(dev device.Device, info model.Info, numBatch int) (*v4State, error) {
	shape := tensor.NewShape(info.NumEmb, 5*info.NumLayer, numBatch, 1)
	buf, err := dev.NewBuffer(shape.Len()*4, tensor.UsageStorage|tensor.UsageCopySrc|tensor.UsageCopyDst)
	if err != nil {
		return nil, err
	}
	dt, err := tensor.NewDeviceTensor[float32](shape, buf, 0)
	if err != nil {
		return nil, err
	}
	s := &v4State{info: info, numBatch: numBatch, dev: dev, tensor: dt}
	for b := 0; b < numBatch; b++ {
		init, err := InitHost(info)
		if err != nil {
			return nil, err
		}
		if err := s.Load(b, init); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *v4State) NumBatch() int        { return s.numBatch }
func (s *v4State) Shape() tensor.Shape { return s.tensor.Shape() }
func (s *v4State) Info() model.Info    { return s.info }

func (s *v4State) Att(layer int) (*tensor.DeviceTensor[float32], error) {
	start := 5 * layer
	return s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(start, start+4), tensor.Full(), tensor.Full()})
}

func (s *v4State) Ffn(layer int) (*tensor.DeviceTensor[float32], error) {
	start := 5*layer + 4
	return s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(start, start+1), tensor.Full(), tensor.Full()})
}

func (s *v4State) Load(batch int, host *tensor.HostTensor[float32]) error {
	if err := checkBatch(batch, s.numBatch); err != nil {
		return err
	}
	view, err := s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.At(batch), tensor.Full()})
	if err != nil {
		return err
	}
	return view.WriteHost(host)
}

func (s *v4State) Back(batch int) (*tensor.HostTensor[float32], error) {
	if err := checkBatch(batch, s.numBatch); err != nil {
		return nil, err
	}
	view, err := s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.At(batch), tensor.Full()})
	if err != nil {
		return nil, err
	}
	return view.ReadHost()
}

func (s *v4State) Blit(other State) error {
	o, ok := other.(*v4State)
	if !ok {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "blit: mismatched state topologies")
	}
	return tensor.CopyTensor(s.tensor, o.tensor)
}

func (s *v4State) BlitBatch(other State, from, to int) error {
	o, ok := other.(*v4State)
	if !ok {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "blit_batch: mismatched state topologies")
	}
	return tensor.CopyTensorBatch(s.tensor, o.tensor, from, to)
}

func (s *v4State) DeepClone() (State, error) {
	clone, err := newV4(s.dev, s.info, s.numBatch)
	if err != nil {
		return nil, err
	}
	if err := tensor.CopyTensor(s.tensor, clone.tensor); err != nil {
		return nil, err
	}
	return clone, nil
}

// Embed extracts the per-layer channel group from a single-batch backed
// (host) state tensor, used to seed a new run from a saved checkpoint
// (spec.md §4.2's State.embed).
func Embed(info model.Info, backed *tensor.HostTensor[float32], layer int) (*tensor.HostTensor[float32], error) {
	start := 5 * layer
	return backed.Slice([4]tensor.AxisRange{tensor.Full(), tensor.Range(start, start+5), tensor.Full(), tensor.Full()})
}
