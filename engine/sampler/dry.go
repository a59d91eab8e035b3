package sampler

import "math"

// ApplyDRY implements the "Don't Repeat Yourself" repetition penalty
// (spec.md §4.4 stage 4): it finds, for every token that could extend the
// longest n-gram already repeated in the recent window, the length of that
// repeat, and penalizes the token by base * multiplier^(length -
// allowed_length). Tokens in SequenceBreakers reset the matcher: history
// before the most recent breaker is never considered.
func ApplyDRY(logits []float32, recent []int, p *DryParams) {
	if p == nil || len(recent) == 0 {
		return
	}
	hist := recent
	if p.SequenceBreakers != nil {
		for i := len(hist) - 1; i >= 0; i-- {
			if _, broke := p.SequenceBreakers[hist[i]]; broke {
				hist = hist[i+1:]
				break
			}
		}
	}
	if len(hist) < 2 {
		return
	}

	last := hist[len(hist)-1]
	lastIdx := len(hist) - 1

	// For every earlier occurrence of the just-generated token, measure how
	// far the n-gram ending there matches the n-gram ending at lastIdx; the
	// token that followed that earlier occurrence is the one whose
	// continuation would repeat the pattern, so it gets penalized.
	bestMatch := make(map[int]int)
	for i := lastIdx - 1; i >= 0; i-- {
		if hist[i] != last {
			continue
		}
		length := 0
		for i-length-1 >= 0 && lastIdx-length-1 >= 0 && hist[i-length-1] == hist[lastIdx-length-1] {
			length++
		}
		length++ // count the matching `last` token itself
		next := hist[i+1]
		if length > bestMatch[next] {
			bestMatch[next] = length
		}
	}

	for tok, length := range bestMatch {
		if uint32(length) < p.AllowedLength {
			continue
		}
		if tok < 0 || tok >= len(logits) {
			continue
		}
		exp := float64(length) - float64(p.AllowedLength)
		penalty := float64(p.Base) * math.Pow(float64(p.Multiplier), exp)
		logits[tok] -= float32(penalty)
	}
}
