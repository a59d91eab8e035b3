package scheduler

import (
	"fmt"

	"github.com/inferno-serve/inferno/engine/sampler"
)

// AdmissionError mirrors engine.ErrorKind's ErrAdmission case. Declared
// here (rather than imported from the engine package) so this package
// never depends on engine; the Engine wraps it into a SequenceError when
// rejecting a request before it ever joins the Waiting population.
type AdmissionError struct {
	Msg string
}

func (e *AdmissionError) Error() string { return e.Msg }

// TruncationMode mirrors engine.TruncationPolicy.
type TruncationMode int

const (
	RejectOverlong TruncationMode = iota
	LeftTruncate
)

// ValidatePrompt enforces max_model_len at admission. Under LeftTruncate it
// reports the number of leading tokens to drop instead of failing.
func ValidatePrompt(promptLen, maxModelLen int, mode TruncationMode) (dropLeading int, err error) {
	if maxModelLen <= 0 || promptLen <= maxModelLen {
		return 0, nil
	}
	if mode == LeftTruncate {
		return promptLen - maxModelLen, nil
	}
	return 0, &AdmissionError{Msg: fmt.Sprintf("prompt length %d exceeds max_model_len %d", promptLen, maxModelLen)}
}

// ValidateSamplingParams checks the bounds spec.md §6 declares for each
// SamplingParams field (e.g. top_p ∈ (0,1]), returning the first violation
// found.
func ValidateSamplingParams(p sampler.Params) error {
	if p.Temperature < 0 {
		return &AdmissionError{Msg: "temperature must be >= 0"}
	}
	if p.TopP != nil && (*p.TopP <= 0 || *p.TopP > 1) {
		return &AdmissionError{Msg: "top_p must be in (0, 1]"}
	}
	if p.MinP != nil && (*p.MinP < 0 || *p.MinP > 1) {
		return &AdmissionError{Msg: "min_p must be in [0, 1]"}
	}
	if p.Dry != nil && p.Dry.Multiplier < 0 {
		return &AdmissionError{Msg: "dry.multiplier must be >= 0"}
	}
	if p.ReturnLogprobs != nil && p.ReturnLogprobs.TopN == 0 {
		return &AdmissionError{Msg: "return_logprobs.top_n must be > 0 when requested"}
	}
	if p.Speculative != nil {
		if p.Speculative.K == 0 {
			return &AdmissionError{Msg: "speculative.k must be > 0 when a draft pipeline is requested"}
		}
		if p.Speculative.DraftPipelineID == "" {
			return &AdmissionError{Msg: "speculative.draft_pipeline_id must be set"}
		}
		if p.ConstraintKind != sampler.ConstraintNone {
			// Draft proposals bypass the constraint mask, so an accepted
			// draft token could violate the FSM. The combination is
			// rejected rather than silently decoded unconstrained.
			return &AdmissionError{Msg: "speculative decoding cannot be combined with response_format constraints"}
		}
	}
	return nil
}
