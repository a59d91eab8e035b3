package sampler

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inferno-serve/inferno/engine/sampler/constraint"
)

// OutcomeKind discriminates a Sample result. Modeled as an explicit sum
// value rather than an error or a panic, per spec.md's "Design Notes" on
// exception-based control flow: a constrained sampler discovering no legal
// token is an ordinary outcome, not a failure of the sampler itself.
type OutcomeKind int

const (
	OutcomeToken OutcomeKind = iota
	OutcomeDeadEnd
)

// Outcome is the result of one Sample call.
type Outcome struct {
	Kind  OutcomeKind
	Token int

	// Logprobs holds the top-N log probabilities of the final distribution
	// (after every pipeline stage) when the request asked for them via
	// ReturnLogprobs; nil otherwise. The chosen token is always included.
	Logprobs map[int]float32
}

// Sampler runs the fixed transformation pipeline of spec.md §4.4 over one
// logits row. It holds no per-sequence state; every sequence shares one
// Sampler value and carries its own mutable State.
type Sampler struct{}

// New returns a ready-to-use Sampler.
func New() *Sampler { return &Sampler{} }

// Sample transforms logits (mutated in place) into a next-token decision
// for the sequence owning st. vocab lets the constraint stage decode
// candidate token ids into text without this package depending on
// tokenizer internals. minTokensMet gates EOS suppression: the caller
// reports whether n_generated >= min_new_tokens.
func (smp *Sampler) Sample(logits []float32, p Params, st *State, vocab constraint.Vocabulary, eosID int, minTokensMet bool) Outcome {
	// 1. logit bias, including EOS suppression before the minimum is met.
	for tok, bias := range p.LogitBias {
		if tok >= 0 && tok < len(logits) {
			logits[tok] += bias
		}
	}
	if !minTokensMet && eosID >= 0 && eosID < len(logits) {
		logits[eosID] = float32(math.Inf(-1))
	}

	// 2. constrained decoding mask.
	if st.Masker != nil {
		anyLegal := false
		for tok := range logits {
			if st.Masker.Permits(vocab, tok) {
				anyLegal = true
			} else {
				logits[tok] = float32(math.Inf(-1))
			}
		}
		if !anyLegal {
			return Outcome{Kind: OutcomeDeadEnd}
		}
	}

	// 3. repetition penalties, 4. DRY.
	ApplyRepetitionPenalties(logits, st.counts, p.FreqPenalty, p.PresencePenalty)
	ApplyDRY(logits, st.window, p.Dry)

	// 5. temperature; T == 0 is greedy and skips filtering/sampling.
	if p.Temperature == 0 {
		tok := Argmax(logits)
		out := Outcome{Kind: OutcomeToken, Token: tok}
		if p.ReturnLogprobs != nil {
			out.Logprobs = topLogprobs(softmax(logits), tok, int(p.ReturnLogprobs.TopN))
		}
		return out
	}
	for i := range logits {
		logits[i] /= p.Temperature
	}

	// 6. top-k -> top-p -> min-p, in that fixed order.
	probs := softmax(logits)
	if p.TopK != nil {
		ApplyTopK(probs, *p.TopK)
	}
	if p.TopP != nil {
		ApplyTopP(probs, *p.TopP)
	}
	if p.MinP != nil {
		ApplyMinP(probs, *p.MinP)
	}
	renormalize(probs)

	// 7. categorical draw from the sequence's own RNG.
	tok := sampleCategorical(probs, st)
	out := Outcome{Kind: OutcomeToken, Token: tok}
	if p.ReturnLogprobs != nil {
		out.Logprobs = topLogprobs(probs, tok, int(p.ReturnLogprobs.TopN))
	}
	return out
}

// topLogprobs extracts the n highest-probability entries of probs as log
// probabilities, always including chosen even when it falls outside the
// top n.
func topLogprobs(probs []float64, chosen, n int) map[int]float32 {
	idx := sortedIndices(probs)
	out := make(map[int]float32, n+1)
	for i := 0; i < n && i < len(idx); i++ {
		t := idx[i]
		if probs[t] <= 0 {
			break
		}
		out[t] = float32(math.Log(probs[t]))
	}
	if _, ok := out[chosen]; !ok && chosen >= 0 && chosen < len(probs) && probs[chosen] > 0 {
		out[chosen] = float32(math.Log(probs[chosen]))
	}
	return out
}

// rngSource adapts the sequence's stdlib *rand.Rand to the Uint64-based
// source gonum's distuv expects, so sampling draws from the same per-
// sequence RNG that produces deterministic replay (spec.md §5, §8 property
// 4) rather than a process-global generator.
type rngSource struct{ st *State }

func (s rngSource) Uint64() uint64 { return s.st.rng.Uint64() }

func sampleCategorical(probs []float64, st *State) int {
	dist := distuv.NewCategorical(probs, rngSource{st})
	return int(dist.Rand())
}
