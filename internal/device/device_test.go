package device

import (
	"testing"

	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUDeviceBufferRoundTrip(t *testing.T) {
	dev := NewCPUDevice()
	buf, err := dev.NewBuffer(16, tensor.UsageStorage|tensor.UsageCopyDst)
	require.NoError(t, err)
	assert.Equal(t, 16, buf.Size())

	buf.WriteAt(0, []byte{1, 2, 3, 4})
	dst := make([]byte, 4)
	buf.ReadAt(dst, 0)
	assert.Equal(t, []byte{1, 2, 3, 4}, dst)

	stats := dev.Stats()
	assert.Equal(t, int64(16), stats.BytesAllocated)
}

func TestCPUDeviceNegativeSize(t *testing.T) {
	dev := NewCPUDevice()
	_, err := dev.NewBuffer(-1, tensor.UsageStorage)
	require.Error(t, err)
}

func TestQueueSubmitRunsOpsInOrder(t *testing.T) {
	dev := NewCPUDevice()
	var order []int
	cb := CommandBuffer{
		PassID: 0,
		Ops: []Op{
			func() error { order = append(order, 1); return nil },
			func() error { order = append(order, 2); return nil },
		},
	}
	require.NoError(t, dev.Queue().Submit([]CommandBuffer{cb}))
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, int64(2), dev.Stats().KernelExecutions)
}

func TestQueueSubmitStopsOnError(t *testing.T) {
	dev := NewCPUDevice()
	boom := assert.AnError
	ran := false
	cb := CommandBuffer{Ops: []Op{
		func() error { return boom },
		func() error { ran = true; return nil },
	}}
	err := dev.Queue().Submit([]CommandBuffer{cb})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
}
