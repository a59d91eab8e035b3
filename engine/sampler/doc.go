// Package sampler turns a pipeline's raw logits for the next token into a
// single chosen token id, running a fixed sequence of stages every call:
// logit bias, constrained-decoding mask, repetition penalties, DRY, then
// temperature scaling, then top-k/top-p/min-p filtering, then categorical
// draw. Rejection arbitration against a draft model's proposal is not a
// stage of Sample: it is the separate SpeculativeVerify, which the Engine
// calls for sequences using speculative decoding.
//
// # Reading Guide
//
//   - sampler.go: Sampler and the fixed Sample() pipeline
//   - penalties.go: frequency/presence repetition penalties
//   - dry.go: the DRY (Don't Repeat Yourself) penalty
//   - filters.go: top-k, top-p, min-p logit filtering
//   - speculative.go: rejection-sampling arbitration for speculative decoding
//   - constraint/: JSON schema and regex constrained-decoding backends
//
// Stage order is fixed and never reordered per-request: a constraint mask
// always applies before penalties, penalties always apply before
// temperature, so sampling parameters compose the same way regardless of
// which ones a given request sets.
package sampler
