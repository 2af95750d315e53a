package ops

// Cursor packs one token's (batch, within-batch index, batch length)
// triple into a single uint32, the layout the kernels decode to find
// their per-token state slice. Bit widths are chosen, preserved
// verbatim once fixed, so a real kernel port never has to change its
// unpacking code: 8 bits of batch index (up to 256 batches), 16 bits of
// within-batch position (up to 65536 tokens per batch), 8 bits of batch
// length (up to 255 tokens per batch in one job).
type Cursor uint32

const (
	cursorLengthBits = 8
	cursorWithinBits = 16
	cursorBatchBits  = 8

	cursorLengthMask = (1 << cursorLengthBits) - 1
	cursorWithinMask = (1 << cursorWithinBits) - 1
	cursorBatchMask  = (1 << cursorBatchBits) - 1
)

// PackCursor encodes a cursor entry. Callers are expected to keep batch
// < 2^8, within < 2^16, length < 2^8; out-of-range values are masked
// rather than rejected, since cursors are built internally from already
// shape-checked InferInfo data.
func PackCursor(batch, within, length int) Cursor {
	return Cursor(uint32(batch&cursorBatchMask)<<24 | uint32(within&cursorWithinMask)<<8 | uint32(length&cursorLengthMask))
}

// Decode returns (batch, within_batch_index, length).
func (c Cursor) Decode() (batch, within, length int) {
	v := uint32(c)
	batch = int(v >> 24 & cursorBatchMask)
	within = int(v >> 8 & cursorWithinMask)
	length = int(v & cursorLengthMask)
	return
}

// BuildCursors packs one Cursor per token, batch-major, for the given
// per-batch token counts.
func BuildCursors(tokensPerBatch []int) []Cursor {
	var out []Cursor
	for b, n := range tokensPerBatch {
		for j := 0; j < n; j++ {
			out = append(out, PackCursor(b, j, n))
		}
	}
	return out
}
