package state

import (
	"math"
	"testing"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v4Info() model.Info {
	return model.Info{Version: model.V4, NumLayer: 2, NumEmb: 3, NumHidden: 4, NumVocab: 5}
}

func TestInitHostV4ZeroExceptPP(t *testing.T) {
	host, err := InitHost(v4Info())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 10, 1, 1}, []int{host.Shape()[0], host.Shape()[1], host.Shape()[2], host.Shape()[3]})
	for l := 0; l < 2; l++ {
		for c := 0; c < 3; c++ {
			assert.Equal(t, float32(-math.MaxFloat32), host.At(c, 5*l+3, 0, 0))
		}
	}
	assert.Equal(t, float32(0), host.At(0, 0, 0, 0))
	assert.Equal(t, float32(0), host.At(0, 1, 0, 0))
	assert.Equal(t, float32(0), host.At(0, 2, 0, 0))
	assert.Equal(t, float32(0), host.At(0, 4, 0, 0))
}

func TestAttFfnDisjointCoverV4(t *testing.T) {
	info := v4Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 1)
	require.NoError(t, err)
	covered := make([]bool, 5*info.NumLayer)
	for l := 0; l < info.NumLayer; l++ {
		att, err := s.Att(l)
		require.NoError(t, err)
		assert.Equal(t, 4, att.Shape()[1])
		ffn, err := s.Ffn(l)
		require.NoError(t, err)
		assert.Equal(t, 1, ffn.Shape()[1])
		for c := 5 * l; c < 5*l+4; c++ {
			covered[c] = true
		}
		covered[5*l+4] = true
	}
	for _, c := range covered {
		assert.True(t, c)
	}
}

func TestLoadBackRoundTrip(t *testing.T) {
	info := v4Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 2)
	require.NoError(t, err)

	init, err := InitHost(info)
	require.NoError(t, err)
	require.NoError(t, s.Load(1, init))

	back, err := s.Back(1)
	require.NoError(t, err)
	assert.Equal(t, init.Data(), back.Data())
}

func TestBatchOutOfRange(t *testing.T) {
	info := v4Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 1)
	require.NoError(t, err)
	_, err = s.Back(5)
	require.Error(t, err)
}

func TestDeepCloneIsolation(t *testing.T) {
	info := v4Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 1)
	require.NoError(t, err)
	clone, err := s.DeepClone()
	require.NoError(t, err)

	mutated, err := InitHost(info)
	require.NoError(t, err)
	mutated.Data()[0] = 99
	require.NoError(t, s.Load(0, mutated))

	back, err := clone.Back(0)
	require.NoError(t, err)
	assert.NotEqual(t, float32(99), back.Data()[0])
}

func v5Info() model.Info {
	return model.Info{Version: model.V5, NumLayer: 2, NumEmb: 4, NumHidden: 8, NumVocab: 5, HeadSize: 2}
}

func TestV5AttFfnShapes(t *testing.T) {
	info := v5Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 2)
	require.NoError(t, err)

	att, err := s.Att(1)
	require.NoError(t, err)
	assert.Equal(t, info.HeadSize, att.Shape()[0])
	assert.Equal(t, 1, att.Shape()[2])
	assert.Equal(t, 2, att.Shape()[3])

	ffn, err := s.Ffn(0)
	require.NoError(t, err)
	assert.Equal(t, info.NumHeads(), ffn.Shape()[1])

	shift, mat, err := SplitAttV5(att, info)
	require.NoError(t, err)
	assert.Equal(t, info.NumHeads(), shift.Shape()[1])
	assert.Equal(t, info.HeadSize*info.NumHeads(), mat.Shape()[1])
}

func TestV5LoadBackRoundTrip(t *testing.T) {
	info := v5Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 2)
	require.NoError(t, err)

	init, err := InitHost(info)
	require.NoError(t, err)
	require.NoError(t, s.Load(1, init))
	back, err := s.Back(1)
	require.NoError(t, err)
	assert.Equal(t, init.Data(), back.Data())
}

func TestSnapshotRestoreRoundTripV4(t *testing.T) {
	info := v4Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 2)
	require.NoError(t, err)

	mutated, err := InitHost(info)
	require.NoError(t, err)
	mutated.Data()[0] = 7
	require.NoError(t, s.Load(1, mutated))

	cp, err := Snapshot(s, 1)
	require.NoError(t, err)
	assert.Equal(t, model.V4, cp.Version)

	other, err := New(dev, info, 2)
	require.NoError(t, err)
	require.NoError(t, Restore(other, 0, cp))

	back, err := other.Back(0)
	require.NoError(t, err)
	assert.Equal(t, cp.Data, back.Data())
}

func TestSnapshotRestoreRoundTripV5(t *testing.T) {
	info := v5Info()
	dev := device.NewCPUDevice()
	s, err := New(dev, info, 1)
	require.NoError(t, err)

	cp, err := Snapshot(s, 0)
	require.NoError(t, err)
	assert.Equal(t, model.V5, cp.Version)

	other, err := New(dev, info, 1)
	require.NoError(t, err)
	require.NoError(t, Restore(other, 0, cp))
}

func TestRestoreRejectsVersionMismatch(t *testing.T) {
	dev := device.NewCPUDevice()
	v4s, err := New(dev, v4Info(), 1)
	require.NoError(t, err)
	v5s, err := New(dev, v5Info(), 1)
	require.NoError(t, err)

	cp, err := Snapshot(v4s, 0)
	require.NoError(t, err)
	err = Restore(v5s, 0, cp)
	assert.Error(t, err)
}

func TestRestoreRejectsShapeMismatch(t *testing.T) {
	dev := device.NewCPUDevice()
	small, err := New(dev, v4Info(), 1)
	require.NoError(t, err)
	bigInfo := v4Info()
	bigInfo.NumEmb = 6
	big, err := New(dev, bigInfo, 1)
	require.NoError(t, err)

	cp, err := Snapshot(small, 0)
	require.NoError(t, err)
	err = Restore(big, 0, cp)
	assert.Error(t, err)
}

func TestV5BlitBatch(t *testing.T) {
	info := v5Info()
	dev := device.NewCPUDevice()
	a, err := New(dev, info, 2)
	require.NoError(t, err)
	b, err := New(dev, info, 2)
	require.NoError(t, err)

	init, err := InitHost(info)
	require.NoError(t, err)
	init.Data()[0] = 42
	require.NoError(t, a.Load(0, init))

	require.NoError(t, a.BlitBatch(b, 0, 1))
	back, err := b.Back(1)
	require.NoError(t, err)
	assert.Equal(t, float32(42), back.Data()[0])
}
