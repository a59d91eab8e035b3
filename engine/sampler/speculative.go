package sampler

// SpeculativeVerify arbitrates a draft pipeline's proposed tokens against
// the target pipeline's logits for the same positions, using the
// rejection-sampling identity of spec.md §4.4 "Speculative decoding":
// token i is accepted if u < min(1, p_target(x_i)/p_draft(x_i)) with u
// drawn from the sequence's own RNG; on the first rejection, a replacement
// token is resampled from normalize(max(0, p_target - p_draft)) and
// drafting resumes from there.
//
// draftTokens, draftLogits, and targetLogits are one entry per proposed
// position (draftLogits[i]/targetLogits[i] is the vocab-sized row that
// proposed/verifies draftTokens[i]). The returned accepted count tells the
// caller exactly how many positions' KV-cache entries to keep; resampled
// is only valid when accepted < len(draftTokens).
func SpeculativeVerify(draftTokens []int, draftLogits, targetLogits [][]float32, st *State) (accepted int, resampled int) {
	for i, tok := range draftTokens {
		pt := softmax(targetLogits[i])
		pd := softmax(draftLogits[i])

		u := st.rng.Float64()
		ratio := 1.0
		if pd[tok] > 0 {
			ratio = pt[tok] / pd[tok]
			if ratio > 1 {
				ratio = 1
			}
		}
		if u < ratio {
			accepted++
			st.AcceptedDraft++
			continue
		}

		diff := make([]float64, len(pt))
		var sum float64
		for j := range pt {
			d := pt[j] - pd[j]
			if d < 0 {
				d = 0
			}
			diff[j] = d
			sum += d
		}
		if sum <= 0 {
			// Degenerate: target and draft agree everywhere the identity
			// could reject from. Fall back to sampling the target row
			// directly rather than leaving a zero distribution.
			copy(diff, pt)
		} else {
			for j := range diff {
				diff[j] /= sum
			}
		}
		resampled = sampleCategorical(diff, st)
		return accepted, resampled
	}
	return accepted, 0
}
