package pipeline

import (
	"context"
	"fmt"
)

// InputKind tags the modality of one Row's content. Multimodal input
// preparation itself (image/audio preprocessing) is the caller's
// responsibility (spec.md §1 "Out of scope"); the core only carries the
// tag and an opaque auxiliary payload through to the pipeline.
type InputKind int

const (
	InputText InputKind = iota
	InputTextImage
	InputTextAudio
)

// Role distinguishes a prefill row (populating KV cache for a new prompt)
// from a decode row (advancing one already-prefilled sequence by one
// token), per spec.md §3 "Batch".
type Role int

const (
	RolePrefill Role = iota
	RoleDecode
)

// Row is one sequence's contribution to a Batch.
type Row struct {
	SeqID string
	Role  Role
	Kind  InputKind

	// Tokens is the chunk of input token ids this call advances by: the
	// (possibly chunked) prompt tail for a Prefill row, or the single
	// most-recently-sampled token for a Decode row.
	Tokens []int
	// Positions are this row's absolute sequence positions, one per
	// Tokens entry.
	Positions []int
	// BlockTable is the paged KV block table for this sequence; empty in
	// contiguous mode, where the pipeline is expected to index by row
	// number instead.
	BlockTable []int

	// VerifyTokens are draft-proposed tokens appended after Tokens for
	// speculative verification. A pipeline advertising
	// SupportsSpeculativeVerify must return, for such a row, the logits at
	// every position from the last Tokens entry through the last
	// VerifyTokens entry (len(VerifyTokens)+1 rows) in Logits.Verify.
	VerifyTokens []int

	// Aux carries multimodal tensors or other pipeline-specific inputs,
	// opaque to the Engine.
	Aux map[string]any
}

// Batch is the logical (pre-device) batch the Engine hands to a Pipeline.
// Invariant (spec.md §3): prefill and decode rows are only mixed here if
// Capabilities().SupportsContinuousBatching is true; otherwise the Engine
// dispatches a prefill-only Batch and a decode-only Batch separately.
type Batch struct {
	Rows []Row
}

// DeviceInputs is the device-resident form of a Batch, produced by
// PrepareInputs. Its shape is entirely pipeline-specific; the Engine never
// inspects it.
type DeviceInputs struct {
	Payload any
}

// Logits holds one vocab-sized row per input Batch row, in the same order:
// the last-position logits for a Prefill row, the single next-position
// logits for a Decode row (spec.md §4.6).
type Logits struct {
	Rows [][]float32

	// Verify is parallel to Rows. For a row carrying VerifyTokens it holds
	// the per-position logits a speculative verification needs:
	// len(VerifyTokens)+1 vocab-sized rows, the i-th giving the
	// next-position logits after consuming the last input token plus the
	// first i draft tokens. nil for ordinary rows.
	Verify [][][]float32
}

// KVShape describes the per-layer K/V tensor shape a Pipeline needs, so
// KVCacheManager can size its allocation (spec.md §4.6 "kv_cache_shape").
type KVShape struct {
	NLayers    int
	BlockSize  int
	NumKVHeads int
	HeadDim    int
}

// Capabilities is the capability set a Pipeline implementation advertises
// (spec.md §4.6).
type Capabilities struct {
	SupportsPagedAttn          bool
	SupportsContinuousBatching bool
	// SupportsSpeculativeVerify reports whether Forward honors
	// Row.VerifyTokens by filling Logits.Verify. Target pipelines lacking
	// it cannot serve speculative requests.
	SupportsSpeculativeVerify bool
	MaxModelLen                int
	Dtype                      string
	DeviceSet                  []string
	HiddenSize                 int
	NLayers                    int
	EOSTokenID                 int
}

// PipelineError distinguishes a per-sequence recoverable forward failure
// from a batch-wide fatal one (spec.md §4.6, §7): Fatal failures close
// every sequence in the batch with ErrPipelineFailed; non-fatal ones name
// the single offending SeqID.
type PipelineError struct {
	Fatal bool
	SeqID string
	Msg   string
}

func (e *PipelineError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("pipeline: fatal: %s", e.Msg)
	}
	return fmt.Sprintf("pipeline: seq=%s: %s", e.SeqID, e.Msg)
}

// Pipeline is the abstract forward pass a concrete model implementation
// must satisfy (spec.md §4.6). The Engine treats every Pipeline value
// opaquely behind this interface.
type Pipeline interface {
	Capabilities() Capabilities
	PrepareInputs(batch Batch) (DeviceInputs, error)
	Forward(ctx context.Context, in DeviceInputs) (Logits, error)
	KVCacheShape() KVShape
	// DeviceSynchronize must return only once Forward's results are safe
	// to read, required before the Engine samples from Logits on
	// async-launch backends.
	DeviceSynchronize(ctx context.Context) error
}
