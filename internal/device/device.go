// Package device models the "portable compute-shader API" spec.md treats
// as an external collaborator: a Device that allocates Buffers and a Queue
// that accepts command buffers. It has no map, poll or unmap step; buffers
// are read and written directly through ReadAt/WriteAt. It also provides a
// reference CPU backend (CPUDevice) so the rest of the runtime can be
// built, recorded, and tested without a real GPU driver — the same role
// the teacher's pkg/gpu/{metal,cuda,opencl,vulkan} bridges play behind
// its Accelerator, reduced here to one always-available implementation.
package device

import (
	"sync"

	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
)

// Op is one recorded unit of device work. On a real backend this would
// encode a compute-pass dispatch; the CPU reference backend runs it
// in-process when its enclosing CommandBuffer is submitted.
type Op func() error

// CommandBuffer is a named, ordered list of recorded Ops. PassID is
// assigned by the job builder (a monotonically increasing counter) so
// that buffers recorded out of order by parallel workers can be
// re-sorted into submission order before Submit.
type CommandBuffer struct {
	PassID uint64
	Ops    []Op
}

// Run executes every Op in the buffer in order, stopping at the first
// error.
func (c CommandBuffer) Run() error {
	for _, op := range c.Ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

// Queue accepts command buffers for execution. Real queues execute
// asynchronously; the reference Queue runs buffers synchronously inline,
// so every buffer's ops have finished by the time Submit returns.
type Queue interface {
	// Submit runs each buffer's ops in order, in the slice order given —
	// callers are responsible for sorting by PassID first (the job
	// builder does this per spec.md §4.3 step 6).
	Submit(buffers []CommandBuffer) error
}

// Stats tracks device-level counters, mirroring the teacher's
// AcceleratorStats (bytes uploaded/downloaded, kernel executions) scaled
// down to what this reference backend can actually observe.
type Stats struct {
	BytesAllocated   int64
	KernelExecutions int64
}

// Device allocates Buffers and exposes a Queue. The CPU reference
// implementation never blocks; a real backend's Poll would drive the
// driver's event loop until pending maps/submits complete.
type Device interface {
	NewBuffer(size int, usage tensor.Usage) (tensor.Buffer, error)
	Queue() Queue
	Stats() Stats
}

// CPUDevice is the reference Device: buffers are plain byte slices
// guarded by a mutex, and submission runs ops synchronously on the
// calling goroutine. It exists so the job builder, state, and tensor
// layers can be exercised end-to-end in tests without CGO or a GPU.
type CPUDevice struct {
	mu    sync.Mutex
	stats Stats
}

// NewCPUDevice constructs a reference device.
func NewCPUDevice() *CPUDevice {
	return &CPUDevice{}
}

func (d *CPUDevice) NewBuffer(size int, usage tensor.Usage) (tensor.Buffer, error) {
	if size < 0 {
		return nil, rwkverr.Newf(rwkverr.BufferOverflow, "negative buffer size %d", size)
	}
	d.mu.Lock()
	d.stats.BytesAllocated += int64(size)
	d.mu.Unlock()
	return &cpuBuffer{data: make([]byte, size), usage: usage}, nil
}

func (d *CPUDevice) Queue() Queue { return cpuQueue{device: d} }

func (d *CPUDevice) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

type cpuQueue struct {
	device *CPUDevice
}

func (q cpuQueue) Submit(buffers []CommandBuffer) error {
	for _, buf := range buffers {
		if err := buf.Run(); err != nil {
			return err
		}
		q.device.mu.Lock()
		q.device.stats.KernelExecutions += int64(len(buf.Ops))
		q.device.mu.Unlock()
	}
	return nil
}

// cpuBuffer is the reference tensor.Buffer: a byte slice behind a mutex.
// Real device buffers require an explicit map/poll/unmap dance before
// host reads are valid (see spec.md §9's open question); this buffer
// answers ReadAt/WriteAt immediately since there is no separate host and
// device address space to synchronize.
type cpuBuffer struct {
	mu    sync.RWMutex
	data  []byte
	usage tensor.Usage
}

func (b *cpuBuffer) Size() int { return len(b.data) }

func (b *cpuBuffer) ReadAt(dst []byte, offset int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	copy(dst, b.data[offset:offset+len(dst)])
}

func (b *cpuBuffer) WriteAt(offset int, src []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data[offset:], src)
}
