package scheduler

import "testing"

func blocksNeeded(blockSize int) func(int, int) int {
	return func(promptLen, cachedLen int) int {
		remaining := promptLen - cachedLen
		if remaining <= 0 {
			return 0
		}
		return (remaining + blockSize - 1) / blockSize
	}
}

func TestPaged_AdmitsPrefillsWithinBudget(t *testing.T) {
	p := &Paged{}
	waiting := []WaitingSeq{{ID: "a", PromptLen: 16, ArrivalRank: 0}}
	cap := Capacity{FreeBlocks: 4, BlocksNeeded: blocksNeeded(16), MaxNumSeqs: 8, MaxNumBatchedTokens: 1024}
	plan := p.Step(waiting, nil, cap)
	if len(plan.AdmitPrefill) != 1 || plan.AdmitPrefill[0] != "a" {
		t.Fatalf("expected sequence a admitted, got %+v", plan)
	}
}

func TestPaged_SkipsPrefillThatDoesNotFitBlocks(t *testing.T) {
	p := &Paged{}
	waiting := []WaitingSeq{{ID: "big", PromptLen: 1000, ArrivalRank: 0}}
	cap := Capacity{FreeBlocks: 1, BlocksNeeded: blocksNeeded(16), MaxNumSeqs: 8, MaxNumBatchedTokens: 1024}
	plan := p.Step(waiting, nil, cap)
	if len(plan.AdmitPrefill) != 0 {
		t.Fatalf("expected no admission when blocks insufficient, got %+v", plan)
	}
}

func TestPaged_PreemptsYoungestFirstUnderPressure(t *testing.T) {
	p := &Paged{}
	running := []RunningSeq{
		{ID: "old", ArrivalRank: 1, NeedsNewBlock: true},
		{ID: "young", ArrivalRank: 2, NeedsNewBlock: true},
	}
	cap := Capacity{FreeBlocks: 1, BlocksNeeded: blocksNeeded(16), MaxNumSeqs: 8, MaxPreemptions: 3}
	plan := p.Step(nil, running, cap)
	if len(plan.Preempt) != 1 || plan.Preempt[0] != "young" {
		t.Fatalf("expected the youngest sequence preempted first, got %+v", plan)
	}
	found := false
	for _, id := range plan.ContinueDecode {
		if id == "old" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the older sequence to keep decoding, got %+v", plan)
	}
}

func TestPaged_FailsAfterMaxPreemptions(t *testing.T) {
	p := &Paged{}
	running := []RunningSeq{{ID: "flaky", ArrivalRank: 1, NeedsNewBlock: true, PreemptionCount: 3}}
	cap := Capacity{FreeBlocks: 0, BlocksNeeded: blocksNeeded(16), MaxNumSeqs: 8, MaxPreemptions: 3}
	plan := p.Step(nil, running, cap)
	if len(plan.Fail) != 1 || plan.Fail[0].ID != "flaky" || plan.Fail[0].Reason != "resource_starvation" {
		t.Fatalf("expected flaky to fail with resource_starvation, got %+v", plan)
	}
}

func TestPaged_FairnessAdmitsStarvedWaiter(t *testing.T) {
	p := &Paged{}
	waiting := []WaitingSeq{{ID: "stuck", PromptLen: 16, ArrivalRank: 5, WaitingSteps: 100}}
	// Token budget (1) is smaller than the prompt, so ordinary admission
	// would skip it, but it has waited past the fairness threshold.
	cap := Capacity{FreeBlocks: 4, BlocksNeeded: blocksNeeded(16), MaxNumSeqs: 8, MaxNumBatchedTokens: 1, FairnessThresholdSteps: 10}
	plan := p.Step(waiting, nil, cap)
	if len(plan.AdmitPrefill) != 1 || plan.AdmitPrefill[0] != "stuck" {
		t.Fatalf("expected the starved waiter admitted via fairness, got %+v", plan)
	}
}
