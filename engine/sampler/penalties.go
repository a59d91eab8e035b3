package sampler

// ApplyRepetitionPenalties subtracts the frequency and presence penalties
// from logits for every token present in counts, the Sequence's windowed
// occurrence tally (spec.md §4.4 stage 3). A no-op when both penalties are
// zero, which is the common case and worth skipping the map walk for.
func ApplyRepetitionPenalties(logits []float32, counts map[int]int, freq, presence float32) {
	if freq == 0 && presence == 0 {
		return
	}
	for tok, n := range counts {
		if tok < 0 || tok >= len(logits) || n <= 0 {
			continue
		}
		logits[tok] -= freq * float32(n)
		if presence != 0 {
			logits[tok] -= presence
		}
	}
}
