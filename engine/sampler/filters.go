package sampler

import (
	"math"
	"sort"
)

// Argmax returns the index of the largest logit. Ties break toward the
// lowest token id (spec.md §4.4 "Numeric notes") because the scan only
// replaces the incumbent on a strict improvement.
func Argmax(logits []float32) int {
	best := 0
	bestV := float32(math.Inf(-1))
	for i, v := range logits {
		if v > bestV {
			bestV = v
			best = i
		}
	}
	return best
}

// softmax computes the probability distribution in f32 precision per
// spec.md §4.4 "Numeric notes", using float64 arithmetic internally only
// because the standard library has no float32 exp.
func softmax(logits []float32) []float64 {
	maxV := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxV {
			maxV = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		p := math.Exp(float64(v - maxV))
		probs[i] = p
		sum += p
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}

// ApplyTopK zeroes every probability outside the k highest. k == 0 or
// k >= len(probs) disables the stage, per SamplingParams.top_k semantics.
func ApplyTopK(probs []float64, k uint32) {
	if k == 0 || int(k) >= len(probs) {
		return
	}
	idx := sortedIndices(probs)
	keep := make(map[int]struct{}, k)
	for i := 0; i < int(k); i++ {
		keep[idx[i]] = struct{}{}
	}
	zeroExcept(probs, keep)
}

// ApplyTopP keeps the smallest prefix of the probability-sorted vocabulary
// whose cumulative mass reaches p (nucleus sampling). p outside (0,1)
// disables the stage.
func ApplyTopP(probs []float64, p float32) {
	if p <= 0 || p >= 1 {
		return
	}
	idx := sortedIndices(probs)
	keep := make(map[int]struct{}, len(probs))
	var cum float64
	target := float64(p)
	for _, i := range idx {
		if probs[i] == 0 {
			continue
		}
		keep[i] = struct{}{}
		cum += probs[i]
		if cum >= target {
			break
		}
	}
	zeroExcept(probs, keep)
}

// ApplyMinP zeroes every token whose probability is below minP times the
// probability of the most likely token, applied after top-k/top-p per the
// fixed stage order in spec.md §4.4.
func ApplyMinP(probs []float64, minP float32) {
	if minP <= 0 {
		return
	}
	var maxP float64
	for _, v := range probs {
		if v > maxP {
			maxP = v
		}
	}
	threshold := maxP * float64(minP)
	for i, v := range probs {
		if v < threshold {
			probs[i] = 0
		}
	}
}

// renormalize rescales probs to sum to 1 after filtering stages have
// zeroed some entries out.
func renormalize(probs []float64) {
	var sum float64
	for _, v := range probs {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for i := range probs {
		probs[i] /= sum
	}
}

func sortedIndices(probs []float64) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	return idx
}

func zeroExcept(probs []float64, keep map[int]struct{}) {
	for i := range probs {
		if _, ok := keep[i]; !ok {
			probs[i] = 0
		}
	}
}
