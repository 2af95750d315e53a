package job

import (
	"github.com/cahya-wirawan/web-rwkv/internal/device"
	catalog "github.com/cahya-wirawan/web-rwkv/internal/ops"
	"github.com/cahya-wirawan/web-rwkv/internal/rwkverr"
	"github.com/cahya-wirawan/web-rwkv/state"
)

// Stage is a Job's position in its Fresh -> Loaded -> Submitted -> Backed
// lifecycle. Submit only succeeds from Loaded and Back only from
// Submitted; Load may be called from any stage.
type Stage int

const (
	Fresh Stage = iota
	Loaded
	Submitted
	Backed
)

func (s Stage) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Submitted:
		return "submitted"
	case Backed:
		return "backed"
	default:
		return "fresh"
	}
}

// Job is one Builder.Build call's recorded pipeline: a fixed set of
// device.CommandBuffers bound to a shape (token counts per batch, which
// batches want output), reusable across calls that share that shape by
// calling Load with fresh token content instead of rebuilding.
type Job struct {
	builder *Builder
	state   state.State

	tokens         InferInfo
	tokensPerBatch []int
	redirect       Redirect
	numBatch       int

	runtime *Runtime
	cmds    []device.CommandBuffer
	cursors []catalog.Cursor
	turbo   bool

	stage Stage
}

// Check reports whether info has the same shape this Job was built for:
// identical per-batch token counts and identical output redirection.
// A Job whose Check fails against a new InferInfo must be rebuilt with
// Builder.Build rather than Loaded.
func (j *Job) Check(info InferInfo) bool {
	tpb := info.TokensPerBatch()
	if len(tpb) != len(j.tokensPerBatch) {
		return false
	}
	for i, n := range tpb {
		if n != j.tokensPerBatch[i] {
			return false
		}
	}
	redirect := info.BuildRedirect()
	if len(redirect.Headers) != len(j.redirect.Headers) {
		return false
	}
	for i, h := range redirect.Headers {
		if h != j.redirect.Headers[i] {
			return false
		}
	}
	for i, o := range redirect.Outputs {
		if o != j.redirect.Outputs[i] {
			return false
		}
	}
	return true
}

// Load rebinds this Job to info's actual token content ahead of Submit.
// info must Check against the shape this Job was built for.
func (j *Job) Load(info InferInfo) error {
	if !j.Check(info) {
		return rwkverr.Newf(rwkverr.ShapeMismatch, "job: load info does not match the shape this job was built for")
	}
	j.tokens = info
	j.stage = Loaded
	return nil
}

// Submit runs every recorded command buffer through the device queue,
// in PassID order. The job must be Loaded first.
func (j *Job) Submit() error {
	if j.stage != Loaded {
		return rwkverr.Newf(rwkverr.DeviceError, "job: submit called in stage %s, want loaded", j.stage)
	}
	if j.runtime != nil {
		if err := j.builder.Dev.Queue().Submit(j.cmds); err != nil {
			return err
		}
	}
	j.stage = Submitted
	return nil
}

// Back reads the head pass's logits back and splits them per batch. The
// job must be Submitted first; Back transitions it to Backed.
func (j *Job) Back() (InferOutput, error) {
	if j.stage != Submitted {
		return nil, rwkverr.Newf(rwkverr.DeviceError, "job: back called in stage %s, want submitted", j.stage)
	}
	out := make(InferOutput, j.numBatch)
	if j.runtime == nil || j.runtime.Logits == nil {
		j.stage = Backed
		return out, nil
	}
	host, err := j.runtime.Logits.ReadHost()
	if err != nil {
		return nil, err
	}
	numVocab := j.runtime.Logits.Shape()[0]
	data := host.Data()
	for b, slot := range j.redirect.Outputs {
		if slot < 0 {
			continue
		}
		row := make([]float32, numVocab)
		copy(row, data[slot*numVocab:(slot+1)*numVocab])
		out[b] = row
	}
	j.stage = Backed
	return out, nil
}

// Stage reports the job's current lifecycle position.
func (j *Job) Stage() Stage { return j.stage }
