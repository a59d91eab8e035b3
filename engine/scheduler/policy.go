package scheduler

import "fmt"

// WaitingSeq is the scheduler's view of one Waiting sequence: everything
// the admission algorithm needs without depending on engine.Sequence.
type WaitingSeq struct {
	ID string
	// PromptLen is the total prompt token count; CachedLen is the longest
	// block-aligned prefix already matched in PrefixCache (0 if disabled
	// or no hit), supplied by the caller before Step runs.
	PromptLen int
	CachedLen int

	ArrivalRank uint64
	// WaitingSteps is the number of steps this sequence has been in
	// Waiting, used by the fairness rule in paged.go.
	WaitingSteps int
}

// RunningSeq is the scheduler's view of one Running sequence.
type RunningSeq struct {
	ID              string
	ArrivalRank     uint64
	PreemptionCount int
	// NeedsNewBlock reports whether this sequence's next decode Append
	// would cross a block boundary and therefore require a fresh block
	// (always false in contiguous mode, since a whole row is reserved at
	// admission).
	NeedsNewBlock bool
}

// Capacity bundles admission limits and the current KV-cache pressure
// reading for one Step call.
type Capacity struct {
	FreeBlocks int
	// BlocksNeeded mirrors kvcache.Store.BlocksNeeded without this package
	// importing engine/kvcache.
	BlocksNeeded func(promptLen, cachedLen int) int

	MaxNumSeqs             int
	MaxNumBatchedTokens    int
	MaxModelLen            int
	FairnessThresholdSteps int
	MaxPreemptions         int

	// RunningCount is the number of sequences already Running before this
	// step's admissions, counted by the caller.
	RunningCount int

	// ContinuousBatching reports whether the Pipeline advertises support
	// for mixing prefill and decode rows in one forward (spec.md §4.6).
	// Policy does not need it to decide what to admit, but Plan.MixRule
	// reports it back so the Engine knows how to group the forward call.
	ContinuousBatching bool
}

// Plan is the scheduler's decision for one step. The Engine applies it:
// admitting prefills (KVCacheManager.Allocate), advancing decodes
// (KVCacheManager.Append), and moving preempted/failed sequences to their
// next state.
type Plan struct {
	AdmitPrefill   []string
	ContinueDecode []string
	Preempt        []string
	Fail           []FailedSeq
	// MixRule is true when prefill and decode rows may share one forward
	// call this step (spec.md §4.5 rule 4); false means the Engine must
	// dispatch the prefill sub-batch before the decode sub-batch.
	MixRule bool
}

// FailedSeq names a sequence the policy has decided cannot proceed, with
// the reason to attach to its terminal Error chunk.
type FailedSeq struct {
	ID     string
	Reason string // matches engine.ErrorKind.String(), e.g. "resource_starvation"
}

// Policy selects the next micro-batch from the current population. Paged
// and Contiguous are the two variants named in spec.md §4.5; new policies
// (e.g. priority-aware admission) can be added by implementing this
// interface and passing the value to engine.NewEngine. NewPolicy only
// constructs the two built-in variants.
type Policy interface {
	Step(waiting []WaitingSeq, running []RunningSeq, cap Capacity) Plan
}

// NewPolicy constructs a named Policy. "paged" matches a kvcache.Paged
// store; "contiguous" matches kvcache.Contiguous, where preemption is
// disabled and capacity is row count (spec.md §4.5 "Contiguous mode is a
// degenerate case").
func NewPolicy(name string) (Policy, error) {
	switch name {
	case "paged":
		return &Paged{}, nil
	case "contiguous":
		return &Contiguous{}, nil
	default:
		return nil, fmt.Errorf("scheduler: unknown policy %q", name)
	}
}
