package model

import (
	"github.com/cahya-wirawan/web-rwkv/internal/numeric"
	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/matrix"
)

// Reader is the external loader contract the model builder consumes.
// Names follow the canonical scheme spec.md §6 lists:
// "blocks.{layer}.{att|ffn}.{key|value|receptance|output|time_decay|
// time_first|time_mix_k|time_mix_v|time_mix_r}.weight", plus
// "emb.weight", "head.weight", "ln_out.{weight|bias}",
// "blocks.{l}.{ln1|ln2}.{weight|bias}". The builder reads the embedding
// layer norm as "emb.ln0.{weight|bias}", not under "blocks.{l}".
type Reader interface {
	Info() (Info, error)
	LoadVectorF16(name string) (*tensor.HostTensor[numeric.Float16], error)
	LoadVectorF32(name string) (*tensor.HostTensor[float32], error)
	// LoadVectorExpF32 returns -exp(raw) for every element, the transform
	// att.time_decay needs applied once at load time so the runtime's
	// WKV recurrence can use the result directly as an additive log-decay.
	LoadVectorExpF32(name string) (*tensor.HostTensor[float32], error)
	// LoadMatrix returns a dense fp16 matrix before any LoRA blend,
	// discount, or quantization the builder applies.
	LoadMatrix(name string) (*matrix.Dense, error)
	LoadEmbed() (*tensor.HostTensor[numeric.Float16], error)
}
