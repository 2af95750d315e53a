package job

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a stable digest of an InferInfo's shape: its per-batch
// token counts and its output redirection. Two InferInfos that Check
// equal (see Job.Check) always produce the same Fingerprint, so a cache
// keyed by Fingerprint can look up a reusable Job without comparing
// Redirect structs field by field.
type Fingerprint [32]byte

// Fingerprint computes info's Fingerprint.
func (info InferInfo) Fingerprint() Fingerprint {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an invalid key length, and nil
		// always satisfies that.
		panic(err)
	}

	var buf [8]byte
	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	tpb := info.TokensPerBatch()
	writeInt(len(tpb))
	for _, n := range tpb {
		writeInt(n)
	}

	redirect := info.BuildRedirect()
	writeInt(len(redirect.Headers))
	for _, pos := range redirect.Headers {
		writeInt(pos)
	}
	writeInt(len(redirect.Outputs))
	for _, slot := range redirect.Outputs {
		writeInt(slot)
	}

	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}
