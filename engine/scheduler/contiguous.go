package scheduler

// Contiguous implements the degenerate scheduling algorithm for the
// Contiguous KV-cache variant (spec.md §4.5 "Contiguous mode is a
// degenerate case"): blocks_needed is never consulted, capacity is
// MaxNumSeqs - running_count (the store's own row limit is enforced by its
// Allocate), and preemption is disabled — prompts that
// would exceed max_model_len are rejected at admission (see admission.go),
// not handled here.
type Contiguous struct{}

func (c *Contiguous) Step(waiting []WaitingSeq, running []RunningSeq, cap Capacity) Plan {
	plan := Plan{MixRule: cap.ContinuousBatching}

	runningCount := cap.RunningCount
	var prefillTokenSum int

	for _, i := range sortedByArrival(waiting) {
		w := waiting[i]
		if runningCount >= cap.MaxNumSeqs {
			break
		}
		if cap.MaxNumBatchedTokens > 0 && prefillTokenSum+w.PromptLen > cap.MaxNumBatchedTokens {
			continue
		}
		plan.AdmitPrefill = append(plan.AdmitPrefill, w.ID)
		runningCount++
		prefillTokenSum += w.PromptLen
	}

	for _, r := range running {
		plan.ContinueDecode = append(plan.ContinueDecode, r.ID)
	}

	return plan
}
