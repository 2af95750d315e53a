package tensor

import (
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
)

// DeviceTensor is a shape-aware, strided view into a device Buffer. A
// freshly allocated tensor has the canonical fastest-axis-first strides
// (stride[0]=1, stride[k]=stride[k-1]*shape[k-1]); View narrows the
// logical shape on one axis while keeping the parent's strides, so a
// view's elements are not necessarily a single contiguous byte run in the
// buffer (e.g. restricting the batch axis of a (num_emb, channels,
// batch, 1) state tensor leaves a stride gap between batches). Real GPU
// kernels address buffers exactly this way — bind the whole buffer plus
// an offset/shape descriptor and let the shader recompute strided
// indices — so this mirrors what a compute pass would actually do rather
// than requiring every slice to be copy-friendly.
type DeviceTensor[T numeric.Element] struct {
	shape      Shape
	strides    [4]int // in elements
	buffer     Buffer
	byteOffset int // byte offset of element (0,0,0,0)
}

func canonicalStrides(shape Shape) [4]int {
	return [4]int{1, shape[0], shape[0] * shape[1], shape[0] * shape[1] * shape[2]}
}

// maxByteExtent returns the offset (in bytes, exclusive) of the byte just
// past the last element this tensor can address, for overflow checking.
func (t *DeviceTensor[T]) maxByteExtent() int {
	elemSize := numeric.Size[T]()
	maxElem := 0
	for axis := 0; axis < 4; axis++ {
		if t.shape[axis] > 0 {
			maxElem += (t.shape[axis] - 1) * t.strides[axis]
		}
	}
	return t.byteOffset + (maxElem+1)*elemSize
}

// NewDeviceTensor wraps an existing buffer range as a DeviceTensor with
// canonical (contiguous) strides, failing BUFFER_OVERFLOW if the range
// escapes the buffer.
func NewDeviceTensor[T numeric.Element](shape Shape, buffer Buffer, byteOffset int) (*DeviceTensor[T], error) {
	t := &DeviceTensor[T]{shape: shape, strides: canonicalStrides(shape), buffer: buffer, byteOffset: byteOffset}
	if size := shape.Len() * numeric.Size[T](); byteOffset+size > buffer.Size() {
		return nil, rwkverr.BufferOverflowf(buffer.Size(), byteOffset, size)
	}
	return t, nil
}

// Shape returns the tensor's logical shape.
func (t *DeviceTensor[T]) Shape() Shape { return t.shape }

// Buffer returns the backing buffer.
func (t *DeviceTensor[T]) Buffer() Buffer { return t.buffer }

// ByteOffset returns the tensor's offset into its buffer.
func (t *DeviceTensor[T]) ByteOffset() int { return t.byteOffset }

// ByteSize returns shape.Len() * sizeof(T). For a strided view this is
// the logical size, not necessarily the span of buffer bytes it touches.
func (t *DeviceTensor[T]) ByteSize() int { return t.shape.Len() * numeric.Size[T]() }

// IsContiguous reports whether this tensor's strides match the canonical
// layout for its own shape, i.e. whether it can be treated as one flat
// byte run.
func (t *DeviceTensor[T]) IsContiguous() bool {
	return t.strides == canonicalStrides(t.shape)
}

// View returns a view of t narrowed on the given per-axis ranges. Axis 0
// (the fastest-moving axis) must stay full; at most one of axes 1..3 may
// be restricted per call, matching every view call site in the job
// builder (state att()/ffn() restrict the channel axis; per-batch copies
// restrict the batch axis). The returned tensor keeps t's strides, so it
// may be non-contiguous; reads/writes below walk it with those strides.
func (t *DeviceTensor[T]) View(ranges [4]AxisRange) (*DeviceTensor[T], error) {
	outShape, bounds, err := resolveRanges(t.shape, ranges)
	if err != nil {
		return nil, err
	}
	if bounds[0][0] != 0 || bounds[0][1] != t.shape[0] {
		return nil, rwkverr.Newf(rwkverr.ShapeMismatch, "device view cannot restrict axis 0 (fastest axis)")
	}
	restricted := 0
	for axis := 1; axis < 4; axis++ {
		if !ranges[axis].Full && (bounds[axis][0] != 0 || bounds[axis][1] != t.shape[axis]) {
			restricted++
		}
	}
	if restricted > 1 {
		return nil, rwkverr.Newf(rwkverr.ShapeMismatch, "device view can restrict at most one axis besides axis 0")
	}
	elemOffset := 0
	for axis := 0; axis < 4; axis++ {
		elemOffset += bounds[axis][0] * t.strides[axis]
	}
	byteOffset := t.byteOffset + elemOffset*numeric.Size[T]()
	view := &DeviceTensor[T]{shape: outShape, strides: t.strides, buffer: t.buffer, byteOffset: byteOffset}
	if max := view.maxByteExtent(); max > t.buffer.Size() {
		return nil, rwkverr.BufferOverflowf(t.buffer.Size(), byteOffset, max-byteOffset)
	}
	return view, nil
}

// forEachElem walks every logical index of shape in axis-0-fastest order,
// calling fn with the flat element offset (in the tensor's own strides).
func (t *DeviceTensor[T]) forEachElem(fn func(elemOffset int)) {
	s := t.shape
	for i3 := 0; i3 < s[3]; i3++ {
		for i2 := 0; i2 < s[2]; i2++ {
			for i1 := 0; i1 < s[1]; i1++ {
				base := i3*t.strides[3] + i2*t.strides[2] + i1*t.strides[1]
				for i0 := 0; i0 < s[0]; i0++ {
					fn(base + i0*t.strides[0])
				}
			}
		}
	}
}

// ReadHost reads the tensor's contents (respecting strides) out of its
// buffer into a fresh, contiguous HostTensor.
func (t *DeviceTensor[T]) ReadHost() (*HostTensor[T], error) {
	elemSize := numeric.Size[T]()
	data := make([]T, 0, t.shape.Len())
	scratch := make([]byte, elemSize)
	var readErr error
	t.forEachElem(func(elemOffset int) {
		t.buffer.ReadAt(scratch, t.byteOffset+elemOffset*elemSize)
		data = append(data, numeric.Decode[T](scratch))
	})
	if readErr != nil {
		return nil, readErr
	}
	return NewHostTensor[T](t.shape, data)
}

// WriteHost uploads host's contents into the tensor's buffer range
// (respecting strides), failing SHAPE_MISMATCH if shapes differ.
func (t *DeviceTensor[T]) WriteHost(host *HostTensor[T]) error {
	if err := host.CheckShape(t.shape); err != nil {
		return err
	}
	elemSize := numeric.Size[T]()
	data := host.Data()
	i := 0
	t.forEachElem(func(elemOffset int) {
		buf := numeric.Encode(make([]byte, 0, elemSize), data[i])
		t.buffer.WriteAt(t.byteOffset+elemOffset*elemSize, buf)
		i++
	})
	return nil
}

// CopyTensor enqueues (here: performs immediately, since the CPU
// reference backend has no deferred command stream) a buffer-to-buffer
// copy from src to dst, failing SHAPE_MISMATCH if shapes differ.
func CopyTensor[T numeric.Element](src, dst *DeviceTensor[T]) error {
	if src.shape != dst.shape {
		return rwkverr.ShapeMismatchf(src.shape, dst.shape)
	}
	if src.IsContiguous() && dst.IsContiguous() {
		raw := make([]byte, src.ByteSize())
		src.buffer.ReadAt(raw, src.byteOffset)
		dst.buffer.WriteAt(dst.byteOffset, raw)
		return nil
	}
	host, err := src.ReadHost()
	if err != nil {
		return err
	}
	return dst.WriteHost(host)
}

// CopyTensorBatch copies exactly one slice along axis 2 (the batch axis)
// from src's fromBatch to dst's toBatch.
func CopyTensorBatch[T numeric.Element](src, dst *DeviceTensor[T], fromBatch, toBatch int) error {
	srcView, err := src.View([4]AxisRange{Full(), Full(), At(fromBatch), Full()})
	if err != nil {
		return err
	}
	dstView, err := dst.View([4]AxisRange{Full(), Full(), At(toBatch), Full()})
	if err != nil {
		return err
	}
	return CopyTensor(srcView, dstView)
}
