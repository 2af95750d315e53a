// Package rwkverr defines the error taxonomy shared by every layer of the
// runtime: tensor construction, shape checks, state access, and job
// building all fail through the same Kind set so callers can switch on
// errors.As instead of parsing messages.
package rwkverr

import "fmt"

// Kind identifies which invariant an Error violates. The set is closed:
// every operation in the runtime that can fail raises one of these.
type Kind int

const (
	// SizeMismatch: a HostTensor's backing data length does not equal
	// its declared shape's element count.
	SizeMismatch Kind = iota
	// ShapeMismatch: two tensor operands (copy, blit, op) have
	// incompatible shapes.
	ShapeMismatch
	// BufferOverflow: a device view or tensor offset escapes the
	// buffer that backs it.
	BufferOverflow
	// BatchSizeMismatch: the caller's batch count does not match
	// state.NumBatch().
	BatchSizeMismatch
	// BatchOutOfRange: a per-batch operation received an index outside
	// [0, NumBatch).
	BatchOutOfRange
	// DeviceError: an operation was given operands living on
	// incompatible devices/buffers.
	DeviceError
)

func (k Kind) String() string {
	switch k {
	case SizeMismatch:
		return "SIZE_MISMATCH"
	case ShapeMismatch:
		return "SHAPE_MISMATCH"
	case BufferOverflow:
		return "BUFFER_OVERFLOW"
	case BatchSizeMismatch:
		return "BATCH_SIZE_MISMATCH"
	case BatchOutOfRange:
		return "BATCH_OUT_OF_RANGE"
	case DeviceError:
		return "DEVICE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type raised throughout the runtime. It
// carries the violated Kind plus the offending values so a caller can
// recover programmatically (errors.As) rather than scraping Error().
type Error struct {
	Kind Kind
	// A and B hold the two compared values (sizes, shapes) when the
	// Kind is a mismatch between exactly two things. Nil otherwise.
	A, B any
	// Msg is a short human-readable detail appended to the Kind name.
	Msg string
	// Cause, when set, is wrapped and surfaced through Unwrap.
	Cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a fixed message. Error has
// no Is method, so errors.Is cannot match on Kind; callers do:
//
//	var rerr *rwkverr.Error
//	if errors.As(err, &rerr) && rerr.Kind == rwkverr.ShapeMismatch { ... }
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// SizeMismatchf builds the SIZE_MISMATCH error from the two lengths
// spec.md §7 names: data length vs. shape.len().
func SizeMismatchf(dataLen, shapeLen int) *Error {
	return &Error{
		Kind: SizeMismatch,
		A:    dataLen,
		B:    shapeLen,
		Msg:  fmt.Sprintf("data length %d != shape length %d", dataLen, shapeLen),
	}
}

// ShapeMismatchf builds the SHAPE_MISMATCH error from two shape-like
// values (anything with a String()); callers pass tensor.Shape.
func ShapeMismatchf(a, b fmt.Stringer) *Error {
	return &Error{
		Kind: ShapeMismatch,
		A:    a,
		B:    b,
		Msg:  fmt.Sprintf("%s != %s", a, b),
	}
}

// BufferOverflowf builds the BUFFER_OVERFLOW error.
func BufferOverflowf(bufSize, offset, size int) *Error {
	return &Error{
		Kind: BufferOverflow,
		Msg:  fmt.Sprintf("buffer size %d, offset %d, size %d", bufSize, offset, size),
	}
}

// BatchSizeMismatchf builds the BATCH_SIZE_MISMATCH error.
func BatchSizeMismatchf(lhs, rhs int) *Error {
	return &Error{
		Kind: BatchSizeMismatch,
		A:    lhs,
		B:    rhs,
		Msg:  fmt.Sprintf("%d != %d", lhs, rhs),
	}
}

// BatchOutOfRangef builds the BATCH_OUT_OF_RANGE error.
func BatchOutOfRangef(batch, max int) *Error {
	return &Error{
		Kind: BatchOutOfRange,
		Msg:  fmt.Sprintf("batch %d, max %d", batch, max),
	}
}
