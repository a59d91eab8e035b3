package scheduler

import (
	"testing"

	"github.com/inferno-serve/inferno/engine/sampler"
)

func TestValidatePrompt_RejectsOverlongByDefault(t *testing.T) {
	_, err := ValidatePrompt(100, 50, RejectOverlong)
	if err == nil {
		t.Fatalf("expected an AdmissionError for an overlong prompt")
	}
}

func TestValidatePrompt_LeftTruncateReportsDropCount(t *testing.T) {
	drop, err := ValidatePrompt(100, 50, LeftTruncate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drop != 50 {
		t.Fatalf("expected 50 tokens to drop, got %d", drop)
	}
}

func TestValidateSamplingParams_RejectsInvalidTopP(t *testing.T) {
	bad := float32(1.5)
	err := ValidateSamplingParams(sampler.Params{TopP: &bad})
	if err == nil {
		t.Fatalf("expected top_p > 1 to be rejected")
	}
}

func TestValidateSamplingParams_AcceptsDefaults(t *testing.T) {
	if err := ValidateSamplingParams(sampler.DefaultParams()); err != nil {
		t.Fatalf("expected default params to validate, got %v", err)
	}
}

func TestValidateSamplingParams_AcceptsSpeculative(t *testing.T) {
	p := sampler.DefaultParams()
	p.Speculative = &sampler.SpeculativeParams{DraftPipelineID: "draft-7b", K: 4}
	if err := ValidateSamplingParams(p); err != nil {
		t.Fatalf("expected a well-formed speculative request to validate, got %v", err)
	}
}

func TestValidateSamplingParams_RejectsSpeculativeWithZeroK(t *testing.T) {
	p := sampler.DefaultParams()
	p.Speculative = &sampler.SpeculativeParams{DraftPipelineID: "draft-7b"}
	err := ValidateSamplingParams(p)
	if err == nil {
		t.Fatal("expected speculative.k == 0 to be rejected")
	}
	if _, ok := err.(*AdmissionError); !ok {
		t.Fatalf("expected an AdmissionError, got %T", err)
	}
}

func TestValidateSamplingParams_RejectsSpeculativeWithConstraint(t *testing.T) {
	p := sampler.DefaultParams()
	p.Speculative = &sampler.SpeculativeParams{DraftPipelineID: "draft-7b", K: 4}
	p.ConstraintKind = sampler.ConstraintJSON
	p.ConstraintSpec = `{"type":"object"}`
	if err := ValidateSamplingParams(p); err == nil {
		t.Fatal("expected speculative decoding combined with a response_format constraint to be rejected")
	}
}
