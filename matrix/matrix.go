// Package matrix implements the per-layer weight matrices the model
// tensors table in spec.md §3 lists as "matrix (fp16 or int8-quantized)":
// w_k/w_v/w_r/w_o, the feed-forward w_k/w_v/w_r, and head.w. Quantization
// itself is an external, load-time concern (spec.md §1), so this package
// only holds the two concrete representations and the arithmetic
// (dequantize-and-multiply) the operation catalog dispatches through;
// choosing int8 vs. fp16 per layer is the model builder's job.
package matrix

import (
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
)

// Matrix is an (rows x cols) weight matrix, row-major with cols the
// fastest-moving axis (matching the tensor layer's axis-0-fastest
// convention: a matrix of shape (cols, rows) in spec.md's tensor-shape
// terms). MulInto computes out[r] = sum_c data[r,c]*x[c] for one token's
// worth of input, overwriting out.
type Matrix interface {
	Rows() int
	Cols() int
	// MulInto computes out = M * x for a single token (len(x) == Cols(),
	// len(out) == Rows()).
	MulInto(x, out []float32)
}

// Dense is an un-quantized fp16-backed matrix; this is the representation
// every weight has immediately after loading, before an optional
// Quantize.
type Dense struct {
	rows, cols int
	data       []numeric.Float16 // row-major, length rows*cols
}

// NewDense builds a Dense matrix, failing SIZE_MISMATCH if data's length
// does not equal rows*cols.
func NewDense(rows, cols int, data []numeric.Float16) (*Dense, error) {
	if len(data) != rows*cols {
		return nil, rwkverr.SizeMismatchf(len(data), rows*cols)
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

func (m *Dense) Rows() int { return m.rows }
func (m *Dense) Cols() int { return m.cols }

func (m *Dense) MulInto(x, out []float32) {
	for r := 0; r < m.rows; r++ {
		row := m.data[r*m.cols : (r+1)*m.cols]
		var acc float32
		for c, v := range row {
			acc += numeric.ToFloat32(v) * x[c]
		}
		out[r] = acc
	}
}

// Scale multiplies every element of the matrix by factor in place. This
// is the "discount" spec.md §4.6 applies to w_o and feed-forward w_v
// before quantization: factor = 2^-floor(layer/RESCALE_LAYER).
func (m *Dense) Scale(factor float32) {
	for i, v := range m.data {
		m.data[i] = numeric.FromFloat32(numeric.ToFloat32(v) * factor)
	}
}

// AddScaled adds alpha*delta element-wise, used by LoRA blending
// (W += alpha*deltaW) for tensors a matching pattern selects.
func (m *Dense) AddScaled(delta *Dense, alpha float32) error {
	if m.rows != delta.rows || m.cols != delta.cols {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "lora delta shape (%d,%d) != base shape (%d,%d)", delta.rows, delta.cols, m.rows, m.cols)
	}
	for i := range m.data {
		base := numeric.ToFloat32(m.data[i])
		d := numeric.ToFloat32(delta.data[i])
		m.data[i] = numeric.FromFloat32(base + alpha*d)
	}
	return nil
}

// Clone returns a Dense with its own backing array.
func (m *Dense) Clone() *Dense {
	data := make([]numeric.Float16, len(m.data))
	copy(data, m.data)
	return &Dense{rows: m.rows, cols: m.cols, data: data}
}

// Quantized is an int8-quantized matrix: one scale+zero-point pair per
// row (the common "row-wise" quantization scheme), data stored as raw
// uint8. This is produced from a Dense by Quantize once LoRA blending and
// discount have already been applied, matching the load order spec.md
// §4.6 describes (blend, discount, then quantize).
type Quantized struct {
	rows, cols int
	data       []uint8
	scale      []float32 // per-row
	zero       []float32 // per-row, in dequantized units
}

// Quantize converts a Dense matrix to row-wise int8, mapping each row's
// [min,max] range onto [0,255].
func Quantize(m *Dense) *Quantized {
	q := &Quantized{
		rows:  m.rows,
		cols:  m.cols,
		data:  make([]uint8, m.rows*m.cols),
		scale: make([]float32, m.rows),
		zero:  make([]float32, m.rows),
	}
	for r := 0; r < m.rows; r++ {
		row := m.data[r*m.cols : (r+1)*m.cols]
		min, max := float32(0), float32(0)
		for i, v := range row {
			f := numeric.ToFloat32(v)
			if i == 0 || f < min {
				min = f
			}
			if i == 0 || f > max {
				max = f
			}
		}
		span := max - min
		scale := span / 255
		if scale == 0 {
			scale = 1
		}
		q.scale[r] = scale
		q.zero[r] = min
		for c, v := range row {
			f := numeric.ToFloat32(v)
			level := (f - min) / scale
			if level < 0 {
				level = 0
			}
			if level > 255 {
				level = 255
			}
			q.data[r*m.cols+c] = uint8(level + 0.5)
		}
	}
	return q
}

func (q *Quantized) Rows() int { return q.rows }
func (q *Quantized) Cols() int { return q.cols }

func (q *Quantized) MulInto(x, out []float32) {
	for r := 0; r < q.rows; r++ {
		row := q.data[r*q.cols : (r+1)*q.cols]
		scale, zero := q.scale[r], q.zero[r]
		var acc float32
		for c, level := range row {
			w := float32(level)*scale + zero
			acc += w * x[c]
		}
		out[r] = acc
	}
}
