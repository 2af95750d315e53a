// Package tensor implements the shape-aware, typed containers the rest of
// the runtime builds on: HostTensor for host-resident data and
// DeviceTensor for data living in a device buffer, plus the shape algebra
// and slice/view/copy operations spec.md §4.1 names.
package tensor

import (
	"fmt"

	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
)

// Shape is the 4-tuple (d0,d1,d2,d3) every tensor carries. Axis 0 is the
// fastest-moving axis, opposite of the row-major convention used by most
// host-language tensor libraries but matching the GPU buffer layout the
// kernels assume.
type Shape [4]int

// NewShape is a small convenience constructor.
func NewShape(d0, d1, d2, d3 int) Shape { return Shape{d0, d1, d2, d3} }

// Len returns d0*d1*d2*d3, the element count.
func (s Shape) Len() int { return s[0] * s[1] * s[2] * s[3] }

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s[0], s[1], s[2], s[3])
}

// Index computes the backing-memory offset of element (i0,i1,i2,i3)
// under the contract in spec.md §4.1:
//
//	idx = ((i3*d2+i2)*d1+i1)*d0+i0
func (s Shape) Index(i0, i1, i2, i3 int) int {
	idx := i3*s[2] + i2
	idx = idx*s[1] + i1
	idx = idx*s[0] + i0
	return idx
}

// AxisRange is a half-open range [Start,End) along one axis, or, with
// Full set, "every index on this axis." It mirrors the
// `..`/`start..end` range syntax the reference implementation's slice/view
// calls accept.
type AxisRange struct {
	Start, End int
	Full       bool
}

// Full selects every index on an axis.
func Full() AxisRange { return AxisRange{Full: true} }

// Range selects the half-open range [start,end) on an axis.
func Range(start, end int) AxisRange { return AxisRange{Start: start, End: end} }

// At selects the single index i (shorthand for Range(i, i+1)).
func At(i int) AxisRange { return AxisRange{Start: i, End: i + 1} }

// resolve turns an AxisRange into concrete [start,end) bounds against an
// axis of length dim, validating that the bounds are in range.
func (r AxisRange) resolve(dim int) (int, int, error) {
	if r.Full {
		return 0, dim, nil
	}
	if r.Start < 0 || r.End > dim || r.Start > r.End {
		return 0, 0, rwkverr.Newf(rwkverr.ShapeMismatch, "axis range [%d,%d) out of bounds for dim %d", r.Start, r.End, dim)
	}
	return r.Start, r.End, nil
}

func (r AxisRange) len(dim int) int {
	if r.Full {
		return dim
	}
	return r.End - r.Start
}

// resolveRanges resolves 4 per-axis ranges against a shape, returning the
// resulting sub-shape and the resolved [start,end) bounds per axis.
func resolveRanges(shape Shape, ranges [4]AxisRange) (Shape, [4][2]int, error) {
	var out Shape
	var bounds [4][2]int
	for axis := 0; axis < 4; axis++ {
		start, end, err := ranges[axis].resolve(shape[axis])
		if err != nil {
			return Shape{}, bounds, err
		}
		bounds[axis] = [2]int{start, end}
		out[axis] = end - start
	}
	return out, bounds, nil
}
