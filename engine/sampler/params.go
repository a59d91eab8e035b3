package sampler

// ConstraintKind selects which constrained-decoding Masker, if any, the
// Engine attaches to a sequence's State before its first Sample call.
type ConstraintKind int

const (
	ConstraintNone ConstraintKind = iota
	ConstraintJSON
	ConstraintRegex
)

// DryParams configures the DRY (Don't Repeat Yourself) repetition penalty,
// applied in its own stage ahead of temperature.
type DryParams struct {
	Multiplier       float32
	Base             float32
	AllowedLength    uint32
	SequenceBreakers map[int]struct{}
}

// SpeculativeParams configures rejection-sampling arbitration against a
// draft pipeline's proposed tokens.
type SpeculativeParams struct {
	DraftPipelineID string
	K               uint32
}

// LogprobsParams requests per-token log probabilities in streamed chunks.
type LogprobsParams struct {
	TopN uint8
}

// Params is the exhaustive set of recognized sampling options for one
// request. Zero values are meaningful defaults: Temperature 0 is greedy,
// TopK/TopP/MinP nil disable their stage.
type Params struct {
	Temperature float32

	TopK *uint32
	TopP *float32
	MinP *float32

	FreqPenalty     float32
	PresencePenalty float32
	PenaltyWindow   uint32

	Dry *DryParams

	Seed *uint64

	LogitBias map[int]float32

	ConstraintKind ConstraintKind
	ConstraintSpec string

	Speculative *SpeculativeParams

	ReturnLogprobs *LogprobsParams
}

// DefaultParams is greedy decoding with no penalties and no constraints.
func DefaultParams() Params {
	return Params{Temperature: 0}
}
