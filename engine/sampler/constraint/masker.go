package constraint

// Vocabulary lets a Masker reason about the text a candidate token id would
// contribute, without this package depending on tokenizer internals: the
// Engine's pipeline adapter supplies the decode function at construction.
type Vocabulary interface {
	Decode(tokenID int) string
}

// Masker is the per-sequence constrained-decoding FSM. A fresh Masker is
// created per sequence (or reset and reused from a pool) when its
// response_format selects Json or Regex.
type Masker interface {
	// Permits reports whether tokenID is legal as the next token given the
	// masker's current state. Called once per vocabulary entry per step by
	// the sampler's constraint stage.
	Permits(vocab Vocabulary, tokenID int) bool

	// Advance commits tokenID, mutating internal state, and reports
	// whether the constraint has reached an accepting terminal (the
	// sequence may stop here with Done(ConstraintDone)).
	Advance(vocab Vocabulary, tokenID int) (accepting bool)
}
