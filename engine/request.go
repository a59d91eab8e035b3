// Defines Request and the sampling/stop parameters a client attaches to it.
// A Request is immutable once accepted; the Engine derives a mutable Sequence
// from it (see sequence.go).

package engine

import (
	"github.com/google/uuid"

	"github.com/inferno-serve/inferno/engine/sampler"
)

// RequestKind distinguishes the protocol-level shape of a request. The core
// treats all kinds uniformly except Embedding, which completes after its
// prefill forward and never enters the decode loop (see Engine.processRow).
type RequestKind int

const (
	Chat RequestKind = iota
	Completion
	Embedding
	Tooling
)

func (k RequestKind) String() string {
	switch k {
	case Chat:
		return "chat"
	case Completion:
		return "completion"
	case Embedding:
		return "embedding"
	case Tooling:
		return "tooling"
	default:
		return "unknown"
	}
}

// ResponseFormatKind selects the constrained-decoding mode, if any.
type ResponseFormatKind int

const (
	NoConstraint ResponseFormatKind = iota
	Json
	Regex
	Grammar
)

// ResponseFormat describes constrained decoding against a JSON schema, a
// regular expression, or (reserved) a grammar. The Engine does not read
// Request.ResponseFormat; constrained decoding is selected by
// Sampling.ConstraintKind and Sampling.ConstraintSpec.
type ResponseFormat struct {
	Kind ResponseFormatKind
	Spec string
}

// StopParams bounds and terminates generation.
type StopParams struct {
	MaxNewTokens uint32
	MinNewTokens uint32
	StopStrings  []string
	StopTokens   map[int]struct{}
	// EOSOverride replaces the pipeline-declared EOS token id when set.
	EOSOverride *int
	// SuppressEOS disables the EOS stop condition for the whole generation.
	// Independently of this flag, EOS never stops generation before
	// MinNewTokens is met.
	SuppressEOS bool
}

// TruncationPolicy controls admission when a prompt exceeds max_model_len.
type TruncationPolicy int

const (
	RejectOverlong TruncationPolicy = iota
	LeftTruncate
)

// Chunk is one unit of streamed output delivered on a Request's sink. Exactly
// one of the fields is meaningful per variant; ChunkKind discriminates.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkTokenIDs
	ChunkLogprobs
	ChunkToolCall
	ChunkDone
	ChunkError
)

// DoneReason is the terminal reason recorded on a ChunkDone chunk.
type DoneReason int

const (
	DoneEosToken DoneReason = iota
	DoneStopString
	DoneMaxTokens
	DoneCancelled
	DoneConstraintDone
	DoneError
)

func (r DoneReason) String() string {
	switch r {
	case DoneEosToken:
		return "eos_token"
	case DoneStopString:
		return "stop_string"
	case DoneMaxTokens:
		return "max_tokens"
	case DoneCancelled:
		return "cancelled"
	case DoneConstraintDone:
		return "constraint_done"
	case DoneError:
		return "error"
	default:
		return "unknown"
	}
}

// Usage reports token accounting for a finished (or finishing) request.
type Usage struct {
	PromptTokens         int
	CompletionTokens     int
	PrefixCacheHitTokens int
}

// Chunk is the wire-agnostic unit streamed to a client. An outer protocol
// layer renders this into SSE/websocket frames; this package never does.
type Chunk struct {
	Kind ChunkKind

	TextDelta string
	TokenIDs  []int
	Logprobs  map[int]float32
	ToolCall  *ToolCall

	Reason DoneReason
	Usage  Usage

	ErrKind ErrorKind
	ErrMsg  string
}

// ToolCall is a parsed tool invocation surfaced mid-stream. Tool-call
// argument parsing itself belongs to the protocol layer; the core only
// carries the structured payload once the constraint engine confirms it.
type ToolCall struct {
	Name      string
	Arguments string
}

// Request is immutable once accepted by the Engine. PromptTokens are
// produced by an external tokenizer; this package only ever sees ids.
type Request struct {
	ID             string
	Kind           RequestKind
	PromptTokens   []int
	Sampling       sampler.Params
	Stop           StopParams
	Tools          []ToolSpec
	ResponseFormat *ResponseFormat
	Truncation     TruncationPolicy

	ModelID string

	// Sink receives streamed Chunks in strict generation order. The Engine
	// never blocks indefinitely on Sink; see Sequence.EmitDelta.
	Sink chan<- Chunk

	// Cancel is observed once per engine step; closing it cooperatively
	// stops generation before the next token is produced.
	Cancel <-chan struct{}

	DisablePrefixCache bool
}

// ToolSpec describes one tool a model may call. Definition and validation
// of tool schemas is a protocol-layer concern; the Engine carries
// Request.Tools but does not read it.
type ToolSpec struct {
	Name        string
	Description string
	ParamSchema string
}

// NewRequestID returns a fresh unique request id.
func NewRequestID() string {
	return uuid.NewString()
}
