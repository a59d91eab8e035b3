package sampler

import "testing"

func TestSpeculativeVerify_AcceptsWhenDistributionsMatch(t *testing.T) {
	st := NewState(1)
	// Draft and target logits are identical, so every draft token must be
	// accepted since p_target/p_draft == 1 for the proposed token whenever
	// its probability is nonzero.
	logits := [][]float32{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}}
	draftTokens := []int{0, 1, 2}
	accepted, _ := SpeculativeVerify(draftTokens, logits, logits, st)
	if accepted != len(draftTokens) {
		t.Fatalf("expected all %d tokens accepted under identical distributions, got %d", len(draftTokens), accepted)
	}
}

func TestSpeculativeVerify_RejectsAndResamplesOnDisagreement(t *testing.T) {
	st := NewState(1)
	// Draft strongly prefers token 0; target strongly prefers token 1.
	// Drafting token 0 should be rejectable, and on rejection the
	// resampled token must come from the positive part of (target-draft),
	// i.e. token 1.
	draftLogits := [][]float32{{20, 0}}
	targetLogits := [][]float32{{0, 20}}
	accepted, resampled := SpeculativeVerify([]int{0}, draftLogits, targetLogits, st)
	if accepted != 0 {
		t.Fatalf("expected the draft token to be rejected, got accepted=%d", accepted)
	}
	if resampled != 1 {
		t.Fatalf("expected resample to land on token 1, got %d", resampled)
	}
}
