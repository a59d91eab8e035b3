// Batch assembly: translating a scheduler.Plan plus the live Sequence
// population into the pipeline.Batch value(s) actually dispatched to
// Pipeline.Forward for one step.
package engine

import "github.com/inferno-serve/inferno/engine/pipeline"

// buildBatches turns one step's admitted prefills and continuing decodes
// into the Batch(es) to forward. When the pipeline supports continuous
// batching, prefill and decode rows share a single Batch; otherwise the
// prefill sub-batch is dispatched before the decode sub-batch, in that
// order (spec.md §3 "Batch" invariant, §4.5 rule 4).
func buildBatches(prefillRows, decodeRows []pipeline.Row, mix bool) []pipeline.Batch {
	if len(prefillRows) == 0 && len(decodeRows) == 0 {
		return nil
	}
	if mix {
		all := make([]pipeline.Row, 0, len(prefillRows)+len(decodeRows))
		all = append(all, prefillRows...)
		all = append(all, decodeRows...)
		return []pipeline.Batch{{Rows: all}}
	}
	var out []pipeline.Batch
	if len(prefillRows) > 0 {
		out = append(out, pipeline.Batch{Rows: prefillRows})
	}
	if len(decodeRows) > 0 {
		out = append(out, pipeline.Batch{Rows: decodeRows})
	}
	return out
}

// prefillRow builds the Pipeline row for a sequence's (possibly prefix-
// cache-shortened) prefill: only the tokens after the matched prefix are
// new input the pipeline needs to process.
func prefillRow(seq *Sequence, cachedLen, promptLen int, blockTable []int) pipeline.Row {
	newTokens := seq.AllTokens[cachedLen:promptLen]
	positions := make([]int, len(newTokens))
	for i := range positions {
		positions[i] = cachedLen + i
	}
	return pipeline.Row{
		SeqID:      seq.ID(),
		Role:       pipeline.RolePrefill,
		Kind:       pipeline.InputText,
		Tokens:     newTokens,
		Positions:  positions,
		BlockTable: blockTable,
	}
}

// decodeRow builds the Pipeline row advancing a Running sequence by its
// single next token: the input is the last token already in its history,
// at its current final position.
func decodeRow(seq *Sequence, blockTable []int) pipeline.Row {
	pos := len(seq.AllTokens) - 1
	return pipeline.Row{
		SeqID:      seq.ID(),
		Role:       pipeline.RoleDecode,
		Kind:       pipeline.InputText,
		Tokens:     []int{seq.AllTokens[pos]},
		Positions:  []int{pos},
		BlockTable: blockTable,
	}
}
