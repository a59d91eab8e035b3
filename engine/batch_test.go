package engine

import (
	"testing"

	"github.com/inferno-serve/inferno/engine/pipeline"
)

func TestBuildBatches_MixRuleCombinesRows(t *testing.T) {
	p := []pipeline.Row{{SeqID: "prefill-1"}}
	d := []pipeline.Row{{SeqID: "decode-1"}}

	batches := buildBatches(p, d, true)
	if len(batches) != 1 {
		t.Fatalf("expected one combined batch under the mix rule, got %d", len(batches))
	}
	if len(batches[0].Rows) != 2 {
		t.Fatalf("expected 2 rows in the combined batch, got %d", len(batches[0].Rows))
	}
}

func TestBuildBatches_NoMixRuleSeparatesPrefillAndDecode(t *testing.T) {
	p := []pipeline.Row{{SeqID: "prefill-1"}}
	d := []pipeline.Row{{SeqID: "decode-1"}}

	batches := buildBatches(p, d, false)
	if len(batches) != 2 {
		t.Fatalf("expected prefill and decode dispatched as separate batches, got %d", len(batches))
	}
	if batches[0].Rows[0].SeqID != "prefill-1" || batches[1].Rows[0].SeqID != "decode-1" {
		t.Fatalf("expected prefill batch before decode batch, got %+v", batches)
	}
}

func TestBuildBatches_EmptyInputsProduceNoBatch(t *testing.T) {
	if batches := buildBatches(nil, nil, true); batches != nil {
		t.Fatalf("expected no batches for an empty step, got %+v", batches)
	}
}

func TestPrefillRow_OnlyNewTokensAfterCachedPrefix(t *testing.T) {
	req := newTestRequest()
	req.PromptTokens = []int{1, 2, 3, 4, 5, 6}
	seq := NewSequence(req, 0, 0, 1, nil)

	row := prefillRow(seq, 2, 6, []int{10, 11})
	if len(row.Tokens) != 4 {
		t.Fatalf("expected 4 new tokens after a cached prefix of 2, got %d", len(row.Tokens))
	}
	if row.Positions[0] != 2 {
		t.Fatalf("expected the first new token at position 2, got %d", row.Positions[0])
	}
	if row.Role != pipeline.RolePrefill {
		t.Fatalf("expected RolePrefill, got %v", row.Role)
	}
}

func TestDecodeRow_SingleMostRecentToken(t *testing.T) {
	req := newTestRequest()
	seq := NewSequence(req, 0, 0, 1, nil)
	seq.AppendToken(42, 0)

	row := decodeRow(seq, []int{7})
	if len(row.Tokens) != 1 || row.Tokens[0] != 42 {
		t.Fatalf("expected a single-token decode row carrying the last appended token, got %+v", row.Tokens)
	}
	if row.Role != pipeline.RoleDecode {
		t.Fatalf("expected RoleDecode, got %v", row.Role)
	}
}
