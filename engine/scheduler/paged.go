package scheduler

import "sort"

// Paged implements the paged-mode algorithm of spec.md §4.5: greedy FIFO
// prefill admission under a token/block/seq-count budget, one decode token
// per Running sequence, preemption (youngest-first) when decodes can't fit,
// and a fairness override so no Waiting sequence starves behind a busy
// queue.
type Paged struct {
	// preemptions tracks PreemptionCount across steps is the caller's
	// job (engine.Sequence.PreemptionCount); Paged only decides who to
	// preempt and who has exceeded MaxPreemptions this call.
}

func (p *Paged) Step(waiting []WaitingSeq, running []RunningSeq, cap Capacity) Plan {
	plan := Plan{MixRule: cap.ContinuousBatching}

	freeBlocks := cap.FreeBlocks
	runningCount := cap.RunningCount
	var prefillTokenSum int

	admittedIdx := make(map[int]bool, len(waiting))

	// 1. Admit prefills greedily in FIFO (arrival_rank) order.
	ordered := sortedByArrival(waiting)
	for _, i := range ordered {
		w := waiting[i]
		if runningCount >= cap.MaxNumSeqs {
			break
		}
		needed := cap.BlocksNeeded(w.PromptLen, w.CachedLen)
		if needed > freeBlocks {
			continue // a later, smaller request may still fit this step
		}
		if cap.MaxNumBatchedTokens > 0 && prefillTokenSum+w.PromptLen > cap.MaxNumBatchedTokens {
			continue
		}
		plan.AdmitPrefill = append(plan.AdmitPrefill, w.ID)
		admittedIdx[i] = true
		freeBlocks -= needed
		runningCount++
		prefillTokenSum += w.PromptLen
	}

	// 2. Continue decodes: every Running sequence gets one token.
	decodesNeedingBlock := 0
	for _, r := range running {
		plan.ContinueDecode = append(plan.ContinueDecode, r.ID)
		if r.NeedsNewBlock {
			decodesNeedingBlock++
		}
	}

	// 3. Preempt, youngest (highest arrival_rank) first, until the decode
	// step's block demand fits in what's left after prefill admission.
	if decodesNeedingBlock > freeBlocks {
		byYoungest := append([]RunningSeq(nil), running...)
		sort.Slice(byYoungest, func(a, b int) bool { return byYoungest[a].ArrivalRank > byYoungest[b].ArrivalRank })

		preempted := make(map[string]bool)
		for _, r := range byYoungest {
			if decodesNeedingBlock <= freeBlocks {
				break
			}
			if r.PreemptionCount+1 > cap.MaxPreemptions && cap.MaxPreemptions > 0 {
				plan.Fail = append(plan.Fail, FailedSeq{ID: r.ID, Reason: "resource_starvation"})
			} else {
				plan.Preempt = append(plan.Preempt, r.ID)
			}
			preempted[r.ID] = true
			if r.NeedsNewBlock {
				decodesNeedingBlock--
			}
		}
		if len(preempted) > 0 {
			kept := plan.ContinueDecode[:0]
			for _, id := range plan.ContinueDecode {
				if !preempted[id] {
					kept = append(kept, id)
				}
			}
			plan.ContinueDecode = kept
		}
	}

	// 5. Fairness: the oldest still-Waiting sequence is admitted once it
	// has waited past the threshold, even past the token budget above (the
	// MaxNumSeqs limit and the free-block check still apply)
	// (the Engine forces a PrefixCache eviction ahead of this call so
	// FreeBlocks already reflects any blocks freed for this purpose,
	// per spec.md §4.5 rule 5) — but never by preempting a Running
	// sequence.
	if len(waiting) > 0 {
		oldest := -1
		for i, w := range waiting {
			if admittedIdx[i] {
				continue
			}
			if w.WaitingSteps > cap.FairnessThresholdSteps {
				if oldest == -1 || w.ArrivalRank < waiting[oldest].ArrivalRank {
					oldest = i
				}
			}
		}
		if oldest >= 0 {
			w := waiting[oldest]
			needed := cap.BlocksNeeded(w.PromptLen, w.CachedLen)
			if needed <= freeBlocks && runningCount < cap.MaxNumSeqs {
				plan.AdmitPrefill = append(plan.AdmitPrefill, w.ID)
			}
		}
	}

	return plan
}

func sortedByArrival(waiting []WaitingSeq) []int {
	idx := make([]int, len(waiting))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		wa, wb := waiting[idx[a]], waiting[idx[b]]
		if wa.ArrivalRank != wb.ArrivalRank {
			return wa.ArrivalRank < wb.ArrivalRank
		}
		return waiting[idx[a]].ID < waiting[idx[b]].ID
	})
	return idx
}
