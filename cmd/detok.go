package cmd

import (
	"strconv"

	"github.com/inferno-serve/inferno/engine"
)

// tokenIDDetokenizer is the stand-in Detokenizer this binary wires when no
// real tokenizer is available: it renders each token id as its decimal
// string followed by a space. Detokenizer internals are an external
// collaborator referenced by interface only (spec.md §1); this exists
// purely so `serve` and `replay` can drive the mock pipeline end to end.
type tokenIDDetokenizer struct {
	decoded string
}

func newTokenIDDetokenizer() engine.Detokenizer {
	return &tokenIDDetokenizer{}
}

func (d *tokenIDDetokenizer) Append(tokenID int) string {
	s := renderTokenID(tokenID)
	d.decoded += s
	return s
}

func (d *tokenIDDetokenizer) Decoded() string { return d.decoded }

func (d *tokenIDDetokenizer) PeekText(tokenID int) string { return renderTokenID(tokenID) }

func renderTokenID(tokenID int) string {
	return strconv.Itoa(tokenID) + " "
}

