package state

import (
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/model"
)

// v5State is (head_size, num_heads*(head_size+2), num_layer, B). See
// v5StateShape's doc comment for the three-section per-layer block
// layout. Att(l) returns the attention section (token-shift vector plus
// the per-head recurrence matrix, columns [0, num_heads*(1+head_size)));
// Ffn(l) returns the trailing feed-forward token-shift vector.
type v5State struct {
	info     model.Info
	numBatch int
	dev      device.Device
	tensor   *tensor.DeviceTensor[float32]
}

func newV5(dev device.Device, info model.Info, numBatch int) (*v5State, error) {
	shape := v5StateShape(info, numBatch)
	buf, err := dev.NewBuffer(shape.Len()*4, tensor.UsageStorage|tensor.UsageCopySrc|tensor.UsageCopyDst)
	if err != nil {
		return nil, err
	}
	dt, err := tensor.NewDeviceTensor[float32](shape, buf, 0)
	if err != nil {
		return nil, err
	}
	s := &v5State{info: info, numBatch: numBatch, dev: dev, tensor: dt}
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

func (s *v5State) NumBatch() int        { return s.numBatch }
func (s *v5State) Shape() tensor.Shape { return s.tensor.Shape() }
func (s *v5State) Info() model.Info    { return s.info }

func (s *v5State) layerBlock(layer int) (*tensor.DeviceTensor[float32], error) {
	return s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.At(layer), tensor.Full()})
}

// Att returns this layer's attention section: its token-shift vector
// (the first num_heads columns, num_emb-wide once reshaped) followed by
// the per-head recurrence matrix. SplitAttV5 splits it further.
func (s *v5State) Att(layer int) (*tensor.DeviceTensor[float32], error) {
	block, err := s.layerBlock(layer)
	if err != nil {
		return nil, err
	}
	numHeads := s.info.NumHeads()
	width := numHeads * (1 + s.info.HeadSize)
	return block.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(0, width), tensor.Full(), tensor.Full()})
}

// Ffn returns this layer's feed-forward token-shift vector: the trailing
// num_heads columns of the per-layer block, num_emb-wide once reshaped.
func (s *v5State) Ffn(layer int) (*tensor.DeviceTensor[float32], error) {
	block, err := s.layerBlock(layer)
	if err != nil {
		return nil, err
	}
	numHeads := s.info.NumHeads()
	headSize := s.info.HeadSize
	start := numHeads * (1 + headSize)
	return block.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(start, start+numHeads), tensor.Full(), tensor.Full()})
}

// SplitAttV5 pulls the num_emb-wide token-shift vector and the
// head_size*num_heads-wide recurrence matrix back out of a tensor
// returned by V5's Att(layer), for the job builder to feed to
// TokenShift and TimeMixV5 respectively.
func SplitAttV5(att *tensor.DeviceTensor[float32], info model.Info) (shift, mat *tensor.DeviceTensor[float32], err error) {
	numHeads := info.NumHeads()
	shift, err = att.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(0, numHeads), tensor.Full(), tensor.Full()})
	if err != nil {
		return nil, nil, err
	}
	mat, err = att.View([4]tensor.AxisRange{tensor.Full(), tensor.Range(numHeads, numHeads*(1+info.HeadSize)), tensor.Full(), tensor.Full()})
	if err != nil {
		return nil, nil, err
	}
	return shift, mat, nil
}

func (s *v5State) Load(batch int, host *tensor.HostTensor[float32]) error {
	if err := checkBatch(batch, s.numBatch); err != nil {
		return err
	}
	view, err := s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.Full(), tensor.At(batch)})
	if err != nil {
		return err
	}
	return view.WriteHost(host)
}

func (s *v5State) Back(batch int) (*tensor.HostTensor[float32], error) {
	if err := checkBatch(batch, s.numBatch); err != nil {
		return nil, err
	}
	view, err := s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.Full(), tensor.At(batch)})
	if err != nil {
		return nil, err
	}
	return view.ReadHost()
}

func (s *v5State) Blit(other State) error {
	o, ok := other.(*v5State)
	if !ok {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "blit: mismatched state topologies")
	}
	return tensor.CopyTensor(s.tensor, o.tensor)
}

func (s *v5State) BlitBatch(other State, from, to int) error {
	o, ok := other.(*v5State)
	if !ok {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "blit_batch: mismatched state topologies")
	}
	srcView, err := s.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.Full(), tensor.At(from)})
	if err != nil {
		return err
	}
	dstView, err := o.tensor.View([4]tensor.AxisRange{tensor.Full(), tensor.Full(), tensor.Full(), tensor.At(to)})
	if err != nil {
		return err
	}
	return tensor.CopyTensor(srcView, dstView)
}

func (s *v5State) DeepClone() (State, error) {
	clone, err := newV5(s.dev, s.info, s.numBatch)
	if err != nil {
		return nil, err
	}
	if err := tensor.CopyTensor(s.tensor, clone.tensor); err != nil {
		return nil, err
	}
	return clone, nil
}
