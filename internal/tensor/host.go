package tensor

import "github.com/cahya-wirawan/web-rwkv/internal/rwkverr"

// HostTensor is a shape-aware, contiguous, host-resident buffer of T.
// Construction fails with SIZE_MISMATCH when data's length does not equal
// shape.Len(), matching spec.md §4.1's host_tensor constructor.
type HostTensor[T any] struct {
	shape Shape
	data  []T
}

// NewHostTensor builds a HostTensor, checking data.Len() == shape.Len().
func NewHostTensor[T any](shape Shape, data []T) (*HostTensor[T], error) {
	if len(data) != shape.Len() {
		return nil, rwkverr.SizeMismatchf(len(data), shape.Len())
	}
	return &HostTensor[T]{shape: shape, data: data}, nil
}

// Shape returns the tensor's shape.
func (t *HostTensor[T]) Shape() Shape { return t.shape }

// Data returns the backing slice. Callers must not retain it beyond the
// tensor's lifetime if they intend to mutate independently; Slice always
// returns a fresh copy so aliasing is only a risk via this accessor.
func (t *HostTensor[T]) Data() []T { return t.data }

// At returns the element at logical index (i0,i1,i2,i3).
func (t *HostTensor[T]) At(i0, i1, i2, i3 int) T {
	return t.data[t.shape.Index(i0, i1, i2, i3)]
}

// Slice extracts a contiguous copy of the sub-region described by ranges,
// one AxisRange per axis, aligned on the fastest axis as spec.md §4.1
// requires. Unlike View (device tensors), this always copies.
func (t *HostTensor[T]) Slice(ranges [4]AxisRange) (*HostTensor[T], error) {
	outShape, bounds, err := resolveRanges(t.shape, ranges)
	if err != nil {
		return nil, err
	}
	out := make([]T, outShape.Len())
	o := 0
	for i3 := bounds[3][0]; i3 < bounds[3][1]; i3++ {
		for i2 := bounds[2][0]; i2 < bounds[2][1]; i2++ {
			for i1 := bounds[1][0]; i1 < bounds[1][1]; i1++ {
				for i0 := bounds[0][0]; i0 < bounds[0][1]; i0++ {
					out[o] = t.data[t.shape.Index(i0, i1, i2, i3)]
					o++
				}
			}
		}
	}
	return &HostTensor[T]{shape: outShape, data: out}, nil
}

// CheckShape reports a SHAPE_MISMATCH error if t's shape differs from
// want.
func (t *HostTensor[T]) CheckShape(want Shape) error {
	if t.shape != want {
		return rwkverr.ShapeMismatchf(t.shape, want)
	}
	return nil
}

// Clone returns a HostTensor with its own backing array holding the same
// values.
func (t *HostTensor[T]) Clone() *HostTensor[T] {
	data := make([]T, len(t.data))
	copy(data, t.data)
	return &HostTensor[T]{shape: t.shape, data: data}
}
