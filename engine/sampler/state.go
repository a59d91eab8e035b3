package sampler

import (
	"math/rand"

	"github.com/inferno-serve/inferno/engine/sampler/constraint"
)

// State is the per-sequence mutable state threaded through every Sample
// call: RNG, repetition-penalty bookkeeping, and the constrained-decoding
// FSM. The Sampler itself carries no mutable state (spec.md §3 "Ownership
// summary": "Sampler is stateless except for per-sequence sampler_state
// which is stored in the Sequence itself").
type State struct {
	rng *rand.Rand

	// window holds recently generated tokens, oldest first, capped to the
	// request's PenaltyWindow; counts mirrors it as an occurrence tally so
	// ApplyRepetitionPenalties never has to rescan it.
	window []int
	counts map[int]int

	// Masker drives constrained decoding when the request's
	// response_format selected Json or Regex; nil otherwise.
	Masker constraint.Masker

	// AcceptedDraft accumulates the number of speculative draft tokens
	// accepted across this sequence's lifetime, for the metrics surface.
	AcceptedDraft int
}

// NewState seeds a fresh per-sequence RNG. Per spec.md §5 "RNGs are
// per-Sequence (no sharing)" — this replaces the global-RNG idiom in the
// source with one explicit seed per call.
func NewState(seed uint64) *State {
	return &State{
		rng:    rand.New(rand.NewSource(int64(seed))),
		counts: make(map[int]int),
	}
}

// RecordToken pushes tok into the repetition-penalty window, evicting the
// oldest entry once the window exceeds its configured size. window == 0
// means unbounded (the whole generated history is kept).
func (s *State) RecordToken(tok int, window uint32) {
	s.window = append(s.window, tok)
	s.counts[tok]++
	if window == 0 {
		return
	}
	for uint32(len(s.window)) > window {
		old := s.window[0]
		s.window = s.window[1:]
		s.counts[old]--
		if s.counts[old] <= 0 {
			delete(s.counts, old)
		}
	}
}

// Window returns the current repetition-penalty / DRY window, oldest
// first. Callers must not mutate the returned slice.
func (s *State) Window() []int { return s.window }
