// Sequence is the engine-internal record tracking one request from
// admission to completion (C1 in the component table). The Engine owns it
// exclusively for its entire lifetime; KV blocks are referenced only by
// opaque index (see engine/kvcache), never held.
package engine

import (
	"strings"

	"github.com/inferno-serve/inferno/engine/sampler"
)

// SeqState is the lifecycle state of a Sequence.
type SeqState int

const (
	Waiting SeqState = iota
	Prefill
	Decoding
	Preempted
	Finishing
	Done
	Error
)

func (s SeqState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Prefill:
		return "prefill"
	case Decoding:
		return "decoding"
	case Preempted:
		return "preempted"
	case Finishing:
		return "finishing"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Detokenizer incrementally converts generated token ids into UTF-8 text,
// buffering partial multi-byte runes until they resolve. Supplied by the
// protocol layer; tokenizer internals are out of scope for this package
// (spec.md §1).
type Detokenizer interface {
	// Append feeds one more generated token id and returns the text delta
	// newly resolved by it (may be empty if tokenID's bytes are part of an
	// unresolved multi-byte rune).
	Append(tokenID int) (delta string)
	// Decoded returns the full resolved text emitted so far.
	Decoded() string
	// PeekText previews the text a candidate token id would contribute if
	// appended next, without mutating any state. Used by the constraint
	// Masker to evaluate every vocabulary entry each step.
	PeekText(tokenID int) string
}

// StopReason pairs a terminal DoneReason with the bookkeeping Close needs
// to emit the right final chunk.
type StopReason struct {
	Done DoneReason
}

// Sequence is mutable and owned by the Engine for its entire lifetime.
type Sequence struct {
	req *Request

	State SeqState

	AllTokens  []int
	PromptLen  int
	NGenerated int

	// BlockIDs is the block table the kvcache.Store returned when this
	// sequence's current prefill was admitted. It is cleared on preemption
	// but not updated as Append adds blocks; the Engine reads the live table
	// from the store.
	BlockIDs []int

	SamplerState *sampler.State

	CreatedAt        int64
	LastScheduledAt  int64
	ArrivalRank      uint64
	Priority         int
	PreemptionCount  int

	// PrefixMatchedTokens is the number of leading prompt tokens served
	// from a PrefixCache hit, reported in Usage.PrefixCacheHitTokens.
	PrefixMatchedTokens int

	eosID *int

	detok Detokenizer

	// stopStringCut is the number of trailing bytes of the most recent
	// decoded delta that belong to a matched stop string and must not be
	// forwarded to the client (see TrimStopSuffix).
	stopStringCut int

	err *SequenceError
}

// NewSequence derives a fresh Waiting Sequence from an accepted Request.
// arrivalRank is the FIFO tiebreaker assigned at admission; seed seeds the
// sequence's private sampler RNG (request's Sampling.Seed if set, otherwise
// an engine-chosen value the caller must record for replay).
func NewSequence(req *Request, arrivalRank uint64, now int64, seed uint64, detok Detokenizer) *Sequence {
	return &Sequence{
		req:          req,
		State:        Waiting,
		AllTokens:    append([]int(nil), req.PromptTokens...),
		PromptLen:    len(req.PromptTokens),
		SamplerState: sampler.NewState(seed),
		CreatedAt:    now,
		ArrivalRank:  arrivalRank,
		detok:        detok,
	}
}

func (s *Sequence) ID() string      { return s.req.ID }
func (s *Sequence) Request() *Request { return s.req }

// EffectivePromptLen is the token count the scheduler and KV allocator
// treat as "the prompt" for this sequence's next prefill pass: PromptLen on
// first admission, or the full token history (prompt plus everything
// generated so far) after a preemption forces a re-prefill. PromptLen
// itself is left untouched for Usage reporting.
func (s *Sequence) EffectivePromptLen() int { return len(s.AllTokens) }

// SetEOS records the token id that terminates generation, either the
// pipeline's declared EOS or the request's override.
func (s *Sequence) SetEOS(id int) { s.eosID = &id }

// MarkPrefilled transitions a Sequence from its initial prefill forward
// pass into ordinary decode-step processing.
func (s *Sequence) MarkPrefilled() {
	s.State = Decoding
}

// AppendToken records a newly sampled token and advances the repetition-
// penalty window. It does not touch the KV cache: the caller is
// responsible for KVCacheManager.Append, per the ownership split in
// spec.md §3.
func (s *Sequence) AppendToken(tok int, penaltyWindow uint32) {
	s.AllTokens = append(s.AllTokens, tok)
	s.NGenerated++
	s.SamplerState.RecordToken(tok, penaltyWindow)
}

// ShouldStop reports the terminal reason for this sequence, if any, given
// the most recently appended token. decodedTail must contain at least the
// last len(longest configured stop string) decoded bytes so a stop string
// straddling a prior chunk boundary is still detected. constraintAccepting
// is computed by the caller via the constraint Masker, since only the
// caller has the Vocabulary needed to drive it.
func (s *Sequence) ShouldStop(decodedTail string, constraintAccepting bool) *StopReason {
	if s.NGenerated == 0 {
		return nil
	}
	minMet := uint32(s.NGenerated) >= s.req.Stop.MinNewTokens
	last := s.AllTokens[len(s.AllTokens)-1]

	if _, stop := s.req.Stop.StopTokens[last]; stop && minMet {
		return &StopReason{Done: DoneEosToken}
	}
	if !s.req.Stop.SuppressEOS && minMet && s.eosID != nil && last == *s.eosID {
		return &StopReason{Done: DoneEosToken}
	}
	if minMet {
		longest := -1
		for _, stopStr := range s.req.Stop.StopStrings {
			if stopStr == "" {
				continue
			}
			if idx := strings.Index(decodedTail, stopStr); idx >= 0 {
				cut := len(decodedTail) - idx
				if cut > longest {
					longest = cut
				}
			}
		}
		if longest >= 0 {
			s.stopStringCut = longest
			return &StopReason{Done: DoneStopString}
		}
	}
	if constraintAccepting {
		return &StopReason{Done: DoneConstraintDone}
	}
	if s.req.Stop.MaxNewTokens > 0 && uint32(s.NGenerated) >= s.req.Stop.MaxNewTokens {
		return &StopReason{Done: DoneMaxTokens}
	}
	return nil
}

// TrimStopSuffix removes the trailing bytes of delta that belong to a stop
// string just matched by ShouldStop, so the final Text chunk never includes
// the stop string itself (spec.md §4.1, scenario S2).
func (s *Sequence) TrimStopSuffix(delta string) string {
	cut := s.stopStringCut
	if cut <= 0 {
		return delta
	}
	if cut >= len(delta) {
		return ""
	}
	return delta[:len(delta)-cut]
}

// EmitDelta sends one Text chunk without blocking the engine loop: if the
// client sink is backpressured beyond its buffer, the sequence is closed
// with ErrClientSlow instead of stalling (spec.md §4.1, §5). Returns false
// if the sequence was closed as a result and no further processing of it
// should occur this step.
func (s *Sequence) EmitDelta(text string, logprobs map[int]float32) bool {
	if text == "" && logprobs == nil {
		return true
	}
	chunk := Chunk{Kind: ChunkText, TextDelta: text, Logprobs: logprobs}
	select {
	case s.req.Sink <- chunk:
		return true
	default:
		s.Close(DoneError, NewSequenceError(ErrClientSlow, "streaming sink backpressured beyond threshold"))
		return false
	}
}

// EmitToolCall sends a ToolCall chunk once the constraint engine confirms a
// complete, schema-conforming call.
func (s *Sequence) EmitToolCall(call ToolCall) bool {
	select {
	case s.req.Sink <- Chunk{Kind: ChunkToolCall, ToolCall: &call}:
		return true
	default:
		s.Close(DoneError, NewSequenceError(ErrClientSlow, "streaming sink backpressured beyond threshold"))
		return false
	}
}

// Close ends the sequence exactly once, sending its terminal chunk
// (Done(reason, usage) or Error(kind, message)) and closing the sink, per
// spec.md §7 "exactly once; no further chunks follow".
func (s *Sequence) Close(reason DoneReason, err *SequenceError) {
	if s.State == Done || s.State == Error {
		return
	}
	usage := Usage{
		PromptTokens:         s.PromptLen,
		CompletionTokens:     s.NGenerated,
		PrefixCacheHitTokens: s.PrefixMatchedTokens,
	}
	var chunk Chunk
	if err != nil {
		s.err = err
		s.State = Error
		chunk = Chunk{Kind: ChunkError, ErrKind: err.Kind, ErrMsg: err.Msg, Reason: DoneError, Usage: usage}
	} else {
		s.State = Done
		chunk = Chunk{Kind: ChunkDone, Reason: reason, Usage: usage}
	}
	select {
	case s.req.Sink <- chunk:
	default:
	}
	close(s.req.Sink)
}

// Err returns the error this sequence closed with, if any.
func (s *Sequence) Err() *SequenceError { return s.err }

// DecodeNext feeds tok through the sequence's Detokenizer, returning the
// newly resolved text delta.
func (s *Sequence) DecodeNext(tok int) string {
	if s.detok == nil {
		return ""
	}
	return s.detok.Append(tok)
}

// DecodedTail returns up to n trailing bytes of everything decoded so far,
// enough to evaluate stop strings that may straddle a chunk boundary.
func (s *Sequence) DecodedTail(n int) string {
	if s.detok == nil {
		return ""
	}
	full := s.detok.Decoded()
	if len(full) <= n {
		return full
	}
	return full[len(full)-n:]
}
