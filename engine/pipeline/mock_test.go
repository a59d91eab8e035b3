package pipeline

import (
	"context"
	"testing"
)

func TestMock_ForwardIsDeterministic(t *testing.T) {
	m := NewMock(32)
	batch := Batch{Rows: []Row{{SeqID: "s1", Tokens: []int{5}, Positions: []int{3}}}}
	in, err := m.PrepareInputs(batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out1, err := m.Forward(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out2, err := m.Forward(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out1.Rows) != 1 || len(out2.Rows) != 1 {
		t.Fatalf("expected one logits row, got %d and %d", len(out1.Rows), len(out2.Rows))
	}
	for i := range out1.Rows[0] {
		if out1.Rows[0][i] != out2.Rows[0][i] {
			t.Fatalf("expected identical logits across calls at index %d: %v vs %v", i, out1.Rows[0][i], out2.Rows[0][i])
		}
	}
}

func TestMock_ForwardFillsVerifyRows(t *testing.T) {
	m := NewMock(32)
	row := Row{SeqID: "s1", Role: RoleDecode, Tokens: []int{5}, Positions: []int{3}, VerifyTokens: []int{7, 9}}
	in, err := m.PrepareInputs(Batch{Rows: []Row{row}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := m.Forward(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Verify) != 1 || len(out.Verify[0]) != 3 {
		t.Fatalf("expected len(VerifyTokens)+1 = 3 verification rows, got %+v", out.Verify)
	}

	// The first verification row must equal a plain decode forward over the
	// same last token and position.
	plainIn, err := m.PrepareInputs(Batch{Rows: []Row{{SeqID: "s1", Tokens: []int{5}, Positions: []int{3}}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plain, err := m.Forward(context.Background(), plainIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range plain.Rows[0] {
		if out.Verify[0][0][i] != plain.Rows[0][i] {
			t.Fatalf("verification row 0 diverges from a plain decode forward at index %d", i)
		}
	}

	// Rows carries the bonus position: the last verification row.
	for i := range out.Rows[0] {
		if out.Rows[0][i] != out.Verify[0][2][i] {
			t.Fatalf("expected Rows[0] to alias the final verification row, diverged at index %d", i)
		}
	}
}

func TestMock_DriftCausesDisagreement(t *testing.T) {
	target := NewMock(32)
	draft := NewMock(32)
	draft.Drift = 5
	if target.predict(5, 3) == draft.predict(5, 3) {
		t.Fatalf("expected target and draft predictions to differ under nonzero drift")
	}
}
