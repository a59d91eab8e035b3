// Engine is the single-threaded cooperative control loop (C7): the only
// component in this package that touches every other one. It owns the
// intake channel, the live Sequence population, and drives the per-step
// procedure of spec.md §4.7 — admit, schedule, forward, sample, append,
// emit, reclaim — once per call to Step, looped by Run.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inferno-serve/inferno/engine/kvcache"
	"github.com/inferno-serve/inferno/engine/pipeline"
	"github.com/inferno-serve/inferno/engine/prefixcache"
	"github.com/inferno-serve/inferno/engine/sampler"
	"github.com/inferno-serve/inferno/engine/sampler/constraint"
	"github.com/inferno-serve/inferno/engine/scheduler"
)

// Config bundles the admission/scheduling limits the Engine consults every
// step. engineconfig.Config loads these from YAML; callers embedding the
// engine directly can construct one literally.
type Config struct {
	ModelID string

	// IntakeBurst caps how many pending Submit()ed requests are admitted
	// into Waiting in a single step, so one congested step can't starve
	// the rest of the procedure (spec.md §4.7 step 1).
	IntakeBurst int

	MaxModelLen            int
	MaxNumSeqs             int
	MaxNumBatchedTokens    int
	FairnessThresholdSteps int
	MaxPreemptions         int

	Truncation TruncationPolicy

	// DisablePrefixCache turns off PrefixCache lookups/inserts engine-wide,
	// independent of any individual Request.DisablePrefixCache.
	DisablePrefixCache bool
}

// DetokenizerFactory builds a fresh Detokenizer for a newly admitted
// Sequence. Supplied by the protocol layer, which owns the tokenizer
// vocabulary this package never sees (spec.md §1).
type DetokenizerFactory func() Detokenizer

// Engine owns the KV store, prefix cache, scheduler policy, pipeline, and
// sampler for one model replica, and every live Sequence derived from
// accepted requests.
type Engine struct {
	cfg Config

	store   kvcache.Store
	prefix  *prefixcache.Cache
	policy  scheduler.Policy
	pipe    pipeline.Pipeline
	smp     *sampler.Sampler
	metrics *Metrics

	// drafts maps SpeculativeParams.DraftPipelineID to the draft pipeline
	// serving it. Written only before Run (RegisterDraftPipeline), read
	// only by the engine task.
	drafts map[string]pipeline.Pipeline

	newDetok DetokenizerFactory

	intake chan *Request

	seqs map[string]*Sequence

	nextArrivalRank uint64
	step            int64

	eosID int
}

// NewEngine wires one replica's components together. metrics may be nil to
// disable instrumentation (e.g. in unit tests).
func NewEngine(cfg Config, store kvcache.Store, prefix *prefixcache.Cache, policy scheduler.Policy, pipe pipeline.Pipeline, metrics *Metrics, newDetok DetokenizerFactory) *Engine {
	if cfg.IntakeBurst <= 0 {
		cfg.IntakeBurst = 64
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		prefix:   prefix,
		policy:   policy,
		pipe:     pipe,
		smp:      sampler.New(),
		metrics:  metrics,
		newDetok: newDetok,
		drafts:   make(map[string]pipeline.Pipeline),
		intake:   make(chan *Request, 1024),
		seqs:     make(map[string]*Sequence),
		eosID:    pipe.Capabilities().EOSTokenID,
	}
}

// RegisterDraftPipeline makes a draft pipeline available to requests whose
// SamplingParams.Speculative names id. Call before Run: the registry is
// read by the engine task without synchronization.
func (e *Engine) RegisterDraftPipeline(id string, p pipeline.Pipeline) {
	e.drafts[id] = p
}

// Submit enqueues an accepted request for admission on a future step. It
// never blocks: a full intake channel means the caller is producing faster
// than this replica can admit, and is reported as ErrAdmission rather than
// stalling the submitting goroutine.
func (e *Engine) Submit(req *Request) error {
	select {
	case e.intake <- req:
		return nil
	default:
		return NewSequenceError(ErrAdmission, "intake channel full")
	}
}

// Run drives Step in a loop until ctx is cancelled. Between steps that do
// no work (nothing Waiting, nothing Running, intake empty) it blocks on the
// next Submit or context cancellation instead of busy-looping, per spec.md
// §5's suspension-point discipline.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		didWork := e.Step(ctx)
		if didWork || len(e.seqs) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.intake:
			e.intake <- req // put it back for Step's own drain to pick up
		}
	}
}

// Step runs exactly one iteration of the control loop and reports whether
// any sequence made progress (admitted, decoded, or closed), so Run knows
// whether to keep stepping hot or fall back to blocking on intake.
func (e *Engine) Step(ctx context.Context) (didWork bool) {
	start := time.Now()
	if e.metrics != nil {
		defer e.metrics.ObserveStep(start)
	}
	defer func() {
		if r := recover(); r != nil {
			// A panic anywhere in one step must not take down the whole
			// replica; every sequence touched this step is left in
			// whatever state it reached, to be retried or reconciled next
			// step rather than losing the process (spec.md §5 "panics
			// during a step must not corrupt cross-sequence state").
			didWork = true
		}
	}()

	didWork = e.drainIntake() || didWork
	didWork = e.pollCancels() || didWork

	waiting, running := e.buildSchedulerView()
	e.evictForFairness(waiting)
	cap := e.capacity(len(running))
	plan := e.policy.Step(waiting, running, cap)

	if len(plan.AdmitPrefill) == 0 && len(plan.ContinueDecode) == 0 && len(plan.Preempt) == 0 && len(plan.Fail) == 0 {
		e.recordGaugeSnapshot()
		return didWork
	}
	didWork = true

	for _, f := range plan.Fail {
		if s := e.seqs[f.ID]; s != nil {
			e.failByReason(s, f.Reason)
		}
	}
	for _, id := range plan.Preempt {
		e.preempt(id)
	}

	prefillRows, decodeRows, specSeqs := e.applyAdmitAndDecode(plan)

	batches := buildBatches(prefillRows, decodeRows, plan.MixRule)
	for _, batch := range batches {
		e.forwardAndSample(ctx, batch)
	}
	for _, seq := range specSeqs {
		e.speculativeStep(ctx, seq)
	}

	e.recordGaugeSnapshot()
	e.step++
	return didWork
}

// drainIntake admits up to IntakeBurst pending requests into Waiting.
func (e *Engine) drainIntake() bool {
	any := false
	for i := 0; i < e.cfg.IntakeBurst; i++ {
		select {
		case req := <-e.intake:
			e.admit(req)
			any = true
		default:
			return any
		}
	}
	return any
}

// admit validates one request and either creates a Waiting Sequence or
// closes it immediately with ErrAdmission — it is never visible to the
// scheduler in the latter case (spec.md §4.7 step 1).
func (e *Engine) admit(req *Request) {
	dropLeading, err := scheduler.ValidatePrompt(len(req.PromptTokens), e.cfg.MaxModelLen, scheduler.TruncationMode(e.cfg.Truncation))
	if err != nil {
		e.rejectAdmission(req, err.Error())
		return
	}
	if dropLeading > 0 {
		req.PromptTokens = req.PromptTokens[dropLeading:]
	}
	if err := scheduler.ValidateSamplingParams(req.Sampling); err != nil {
		e.rejectAdmission(req, err.Error())
		return
	}
	if sp := req.Sampling.Speculative; sp != nil {
		if _, ok := e.drafts[sp.DraftPipelineID]; !ok {
			e.rejectAdmission(req, fmt.Sprintf("unknown draft pipeline %q", sp.DraftPipelineID))
			return
		}
		if !e.pipe.Capabilities().SupportsSpeculativeVerify {
			e.rejectAdmission(req, "target pipeline does not support speculative verification")
			return
		}
	}

	seed := uint64(0)
	if req.Sampling.Seed != nil {
		seed = *req.Sampling.Seed
	}

	var detok Detokenizer
	if e.newDetok != nil {
		detok = e.newDetok()
	}
	seq := NewSequence(req, e.nextArrivalRank, e.step, seed, detok)
	e.nextArrivalRank++

	eos := e.eosID
	if req.Stop.EOSOverride != nil {
		eos = *req.Stop.EOSOverride
	}
	seq.SetEOS(eos)

	if m, err := e.buildMasker(req); err != nil {
		e.rejectAdmission(req, err.Error())
		return
	} else if m != nil {
		seq.SamplerState.Masker = m
	}

	e.seqs[seq.ID()] = seq
}

func (e *Engine) buildMasker(req *Request) (constraint.Masker, error) {
	switch req.Sampling.ConstraintKind {
	case sampler.ConstraintJSON:
		return constraint.NewJSONMasker(req.Sampling.ConstraintSpec)
	case sampler.ConstraintRegex:
		return constraint.NewRegexMasker(req.Sampling.ConstraintSpec)
	default:
		return nil, nil
	}
}

func (e *Engine) rejectAdmission(req *Request, msg string) {
	seq := NewSequence(req, e.nextArrivalRank, e.step, 0, nil)
	e.nextArrivalRank++
	seq.Close(DoneError, NewSequenceError(ErrAdmission, "%s", msg))
}

// pollCancels closes every Prefill, Decoding or Preempted sequence whose
// Request.Cancel has fired (Waiting sequences are not polled), releasing its
// KV blocks before the next scheduling decision is
// made (spec.md §4.7 step 2, §5 "cancellation must be observed promptly").
// cancelPollConcurrency bounds the fan-out pollCancels uses to check every
// live sequence's Cancel channel in one step, so a replica holding
// thousands of sequences doesn't spin up a goroutine per sequence just to
// do a non-blocking channel check.
const cancelPollConcurrency = 64

func (e *Engine) pollCancels() bool {
	candidates := make([]*Sequence, 0, len(e.seqs))
	for _, seq := range e.seqs {
		if seq.State == Prefill || seq.State == Decoding || seq.State == Preempted {
			candidates = append(candidates, seq)
		}
	}
	if len(candidates) == 0 {
		return false
	}

	fired := make([]bool, len(candidates))
	var g errgroup.Group
	g.SetLimit(cancelPollConcurrency)
	for i, seq := range candidates {
		i, seq := i, seq
		g.Go(func() error {
			select {
			case <-seq.Request().Cancel:
				fired[i] = true
			default:
			}
			return nil
		})
	}
	_ = g.Wait()

	any := false
	for i, seq := range candidates {
		if !fired[i] {
			continue
		}
		e.releaseAndDonate(seq)
		seq.Close(DoneCancelled, nil)
		delete(e.seqs, seq.ID())
		any = true
	}
	return any
}

func (e *Engine) buildSchedulerView() ([]scheduler.WaitingSeq, []scheduler.RunningSeq) {
	var waiting []scheduler.WaitingSeq
	var running []scheduler.RunningSeq
	blockSize := e.store.BlockSize()

	for _, seq := range e.seqs {
		switch seq.State {
		case Waiting, Preempted:
			cached := 0
			if !e.cfg.DisablePrefixCache && !seq.Request().DisablePrefixCache {
				cached = e.prefix.MatchedLength(e.cfg.ModelID, seq.AllTokens)
			}
			waiting = append(waiting, scheduler.WaitingSeq{
				ID:           seq.ID(),
				PromptLen:    seq.EffectivePromptLen(),
				CachedLen:    cached,
				ArrivalRank:  seq.ArrivalRank,
				WaitingSteps: int(e.step - seq.CreatedAt),
			})
		case Prefill, Decoding:
			needsBlock := blockSize > 0 && (len(seq.AllTokens))%blockSize == 0
			running = append(running, scheduler.RunningSeq{
				ID:              seq.ID(),
				ArrivalRank:     seq.ArrivalRank,
				PreemptionCount: seq.PreemptionCount,
				NeedsNewBlock:   needsBlock,
			})
		}
	}
	return waiting, running
}

// evictForFairness forces PrefixCache blocks out of the evictable pool when
// the oldest starved Waiting sequence (the same one Paged.Step's fairness
// rule would pick, spec.md §4.5 rule 5) cannot be admitted out of the
// store's currently free blocks alone. Without this, a waiter stuck behind
// a full store whose blocks are all tied up in unpinned-but-cached
// prefixes would be skipped by the fairness check every step, since
// FreeBlocks alone never grows on its own.
func (e *Engine) evictForFairness(waiting []scheduler.WaitingSeq) {
	if e.prefix == nil || e.cfg.DisablePrefixCache {
		return
	}
	var oldest *scheduler.WaitingSeq
	for i := range waiting {
		w := &waiting[i]
		if w.WaitingSteps <= e.cfg.FairnessThresholdSteps {
			continue
		}
		if oldest == nil || w.ArrivalRank < oldest.ArrivalRank {
			oldest = w
		}
	}
	if oldest == nil {
		return
	}
	needed := e.store.BlocksNeeded(oldest.PromptLen, oldest.CachedLen)
	if gap := needed - e.store.FreeBlocks(); gap > 0 {
		e.prefix.EvictUnpinned(gap)
	}
}

func (e *Engine) capacity(runningCount int) scheduler.Capacity {
	return scheduler.Capacity{
		FreeBlocks:             e.store.FreeBlocks(),
		BlocksNeeded:           e.store.BlocksNeeded,
		MaxNumSeqs:             e.cfg.MaxNumSeqs,
		MaxNumBatchedTokens:    e.cfg.MaxNumBatchedTokens,
		MaxModelLen:            e.cfg.MaxModelLen,
		FairnessThresholdSteps: e.cfg.FairnessThresholdSteps,
		MaxPreemptions:         e.cfg.MaxPreemptions,
		RunningCount:           runningCount,
		ContinuousBatching:     e.pipe.Capabilities().SupportsContinuousBatching,
	}
}

func (e *Engine) failByReason(seq *Sequence, reason string) {
	kind := ErrResourceStarvation
	if reason != ErrResourceStarvation.String() {
		kind = ErrInternal
	}
	e.releaseAndDonate(seq)
	seq.Close(DoneError, NewSequenceError(kind, "%s", reason))
	delete(e.seqs, seq.ID())
	if e.metrics != nil {
		e.metrics.SequenceErrors.WithLabelValues(kind.String()).Inc()
	}
}

func (e *Engine) failSequence(seq *Sequence, kind ErrorKind, msg string) {
	e.releaseAndDonate(seq)
	seq.Close(DoneError, NewSequenceError(kind, "%s", msg))
	delete(e.seqs, seq.ID())
	if e.metrics != nil {
		e.metrics.SequenceErrors.WithLabelValues(kind.String()).Inc()
	}
}

func (e *Engine) preempt(id string) {
	seq := e.seqs[id]
	if seq == nil {
		return
	}
	e.releaseAndDonate(seq)
	seq.BlockIDs = nil
	seq.PreemptionCount++
	seq.State = Preempted
	if e.metrics != nil {
		e.metrics.Preemptions.Inc()
	}
}

// releaseAndDonate frees a sequence's KV blocks, drops the PrefixCache pins
// its admission-time Lookup took, and offers its full, block-aligned prefix
// to PrefixCache for reuse by a future prompt
// (spec.md §4.3 "Insertion" / §4.5 preemption handling).
func (e *Engine) releaseAndDonate(seq *Sequence) {
	blockIDs := e.store.Release(seq.ID())
	if len(blockIDs) == 0 {
		return
	}
	if seq.PrefixMatchedTokens > 0 && e.prefix != nil {
		matched := seq.AllTokens[:seq.PrefixMatchedTokens]
		e.prefix.Unpin(e.cfg.ModelID, matched, len(matched))
	}
	if e.cfg.DisablePrefixCache || seq.Request().DisablePrefixCache {
		return
	}
	e.prefix.Insert(e.cfg.ModelID, seq.AllTokens, blockIDs)
}

// applyAdmitAndDecode reserves KV cache space for newly admitted prefills
// and builds this step's pipeline.Row set for both prefill and decode
// sequences. Decode rows do not yet have their Append applied: that happens
// per-row, after a token is actually sampled (spec.md §4.7 step 6).
// Sequences configured for speculative decoding are returned separately:
// each needs its own draft/verify exchange rather than a shared decode row.
func (e *Engine) applyAdmitAndDecode(plan scheduler.Plan) (prefillRows, decodeRows []pipeline.Row, specSeqs []*Sequence) {
	for _, id := range plan.AdmitPrefill {
		seq := e.seqs[id]
		if seq == nil {
			continue
		}
		promptLen := seq.EffectivePromptLen()
		var cachedBlocks []int
		cachedLen := 0
		if !e.cfg.DisablePrefixCache && !seq.Request().DisablePrefixCache {
			cachedBlocks, cachedLen = e.prefix.Lookup(e.cfg.ModelID, seq.AllTokens)
		}
		blockIDs, ok := e.store.Allocate(id, promptLen, cachedBlocks)
		if !ok {
			// The scheduler already accounted for free blocks this step;
			// a failure here means another admission in this same batch
			// consumed capacity this Plan didn't anticipate. Defer the
			// sequence to the next step rather than failing it outright.
			if cachedLen > 0 {
				e.prefix.Unpin(e.cfg.ModelID, seq.AllTokens, len(cachedBlocks))
			}
			continue
		}
		seq.State = Prefill
		seq.BlockIDs = blockIDs
		seq.PrefixMatchedTokens = cachedLen
		seq.LastScheduledAt = e.step
		if e.metrics != nil {
			e.metrics.Admissions.Inc()
			if cachedLen > 0 {
				e.metrics.PrefixCacheHits.Inc()
			} else {
				e.metrics.PrefixCacheMisses.Inc()
			}
		}
		prefillRows = append(prefillRows, prefillRow(seq, cachedLen, promptLen, blockIDs))
	}

	for _, id := range plan.ContinueDecode {
		seq := e.seqs[id]
		if seq == nil || seq.State != Decoding {
			continue
		}
		if seq.Request().Sampling.Speculative != nil {
			specSeqs = append(specSeqs, seq)
			continue
		}
		decodeRows = append(decodeRows, decodeRow(seq, e.store.BlockIDs(id)))
	}
	return prefillRows, decodeRows, specSeqs
}

const maxStopStringTail = 64

// forwardAndSample runs one Batch through the pipeline and processes each
// row's resulting logits: sample, append to KV, detokenize, check stop
// conditions, and emit (spec.md §4.7 steps 4-8).
func (e *Engine) forwardAndSample(ctx context.Context, batch pipeline.Batch) {
	in, err := e.pipe.PrepareInputs(batch)
	if err != nil {
		e.failBatch(batch, err)
		return
	}
	out, err := e.pipe.Forward(ctx, in)
	if err != nil {
		e.failBatch(batch, err)
		return
	}
	if err := e.pipe.DeviceSynchronize(ctx); err != nil {
		e.failBatch(batch, err)
		return
	}

	for i, row := range batch.Rows {
		if i >= len(out.Rows) {
			break
		}
		seq := e.seqs[row.SeqID]
		if seq == nil {
			continue
		}
		e.processRow(seq, row, out.Rows[i])
	}
}

func (e *Engine) failBatch(batch pipeline.Batch, err error) {
	if perr, ok := err.(*pipeline.PipelineError); ok && !perr.Fatal {
		if s := e.seqs[perr.SeqID]; s != nil {
			e.failSequence(s, ErrPipelineFailed, perr.Msg)
		}
		return
	}
	for _, row := range batch.Rows {
		if s := e.seqs[row.SeqID]; s != nil {
			e.failSequence(s, ErrPipelineFailed, err.Error())
		}
	}
}

func (e *Engine) processRow(seq *Sequence, row pipeline.Row, logits []float32) {
	wasPrefill := row.Role == pipeline.RolePrefill
	if wasPrefill {
		seq.MarkPrefilled()
	}

	if seq.Request().Kind == Embedding {
		// Embedding requests stop at prefill: the pipeline has computed
		// the hidden states the protocol layer needs, and no token is ever
		// decoded. Usage reports prompt tokens only.
		e.releaseAndDonate(seq)
		seq.Close(DoneMaxTokens, nil)
		delete(e.seqs, seq.ID())
		return
	}

	outcome := e.sampleRow(seq, logits)
	if outcome.Kind == sampler.OutcomeDeadEnd {
		e.failSequence(seq, ErrConstraintDeadEnd, "no token permitted by the active constraint")
		return
	}

	if wasPrefill && !e.cfg.DisablePrefixCache && !seq.Request().DisablePrefixCache {
		if blockIDs := e.store.BlockIDs(seq.ID()); len(blockIDs) > 0 {
			e.prefix.Insert(e.cfg.ModelID, seq.AllTokens[:seq.EffectivePromptLen()], blockIDs)
		}
	}

	e.commitToken(seq, outcome.Token, outcome.Logprobs)
}

// sampleRow runs the full Sampler pipeline over one logits row for seq.
func (e *Engine) sampleRow(seq *Sequence, logits []float32) sampler.Outcome {
	minTokensMet := uint32(seq.NGenerated) >= seq.Request().Stop.MinNewTokens
	eos := -1
	if seq.eosID != nil {
		eos = *seq.eosID
	}
	sampleStart := time.Now()
	outcome := e.smp.Sample(logits, seq.Request().Sampling, seq.SamplerState, tokenVocabAdapter{detok: seq.detok}, eos, minTokensMet)
	if e.metrics != nil {
		e.metrics.SamplerDuration.Observe(time.Since(sampleStart).Seconds())
	}
	return outcome
}

// commitToken appends one sampled token to seq's KV cache and history,
// advances the constraint FSM, checks stop conditions, and emits the
// resulting text delta (spec.md §4.7 steps 6-8). Returns false once seq is
// no longer live (closed, preempted, or dropped), so a multi-token commit
// (speculative decoding) knows to discard its remaining tokens.
func (e *Engine) commitToken(seq *Sequence, tok int, logprobs map[int]float32) bool {
	if !e.store.Append(seq.ID()) {
		// A KV allocation failure here is a preemption signal, not an
		// error (spec.md §4.5): the scheduler's block budget only covers
		// prompt tokens, not the one extra token this row is about to
		// generate, so a tightly packed step can still run out here.
		e.preempt(seq.ID())
		return false
	}

	seq.AppendToken(tok, seq.Request().Sampling.PenaltyWindow)
	if e.metrics != nil {
		e.metrics.TokensGenerated.Inc()
	}

	delta := seq.DecodeNext(tok)

	var accepting bool
	if seq.SamplerState.Masker != nil {
		accepting = seq.SamplerState.Masker.Advance(tokenVocabAdapter{detok: seq.detok}, tok)
	}

	tail := seq.DecodedTail(maxStopStringTail)
	if reason := seq.ShouldStop(tail, accepting); reason != nil {
		toEmit := seq.TrimStopSuffix(delta)
		if !seq.EmitDelta(toEmit, logprobs) {
			delete(e.seqs, seq.ID())
			return false
		}
		e.releaseAndDonate(seq)
		seq.Close(reason.Done, nil)
		delete(e.seqs, seq.ID())
		return false
	}

	if !seq.EmitDelta(delta, logprobs) {
		delete(e.seqs, seq.ID())
		return false
	}
	return true
}

// speculativeStep advances one Decoding sequence by up to k+1 tokens: the
// draft pipeline greedily proposes k tokens one decode forward at a time,
// the target pipeline verifies all of them in a single forward via a
// VerifyTokens row, and the rejection-sampling arbitration of
// sampler.SpeculativeVerify decides how many survive. The KV cache
// advances by exactly the committed count, one Append per token (spec.md
// §4.4 "Speculative decoding"). The draft pipeline keeps its own KV state
// behind Forward; it never shares blocks with the target's store.
func (e *Engine) speculativeStep(ctx context.Context, seq *Sequence) {
	sp := seq.Request().Sampling.Speculative
	draft := e.drafts[sp.DraftPipelineID]
	if draft == nil {
		e.failSequence(seq, ErrInternal, fmt.Sprintf("draft pipeline %q vanished after admission", sp.DraftPipelineID))
		return
	}
	k := int(sp.K)

	draftToks := make([]int, 0, k)
	draftLogits := make([][]float32, 0, k)
	last := seq.AllTokens[len(seq.AllTokens)-1]
	pos := len(seq.AllTokens) - 1
	for i := 0; i < k; i++ {
		row := pipeline.Row{
			SeqID:     seq.ID(),
			Role:      pipeline.RoleDecode,
			Kind:      pipeline.InputText,
			Tokens:    []int{last},
			Positions: []int{pos},
		}
		out, err := forwardSingle(ctx, draft, row)
		if err != nil {
			e.failSequence(seq, ErrPipelineFailed, err.Error())
			return
		}
		logits := out.Rows[0]
		tok := sampler.Argmax(logits)
		draftToks = append(draftToks, tok)
		draftLogits = append(draftLogits, logits)
		last, pos = tok, pos+1
	}

	trow := decodeRow(seq, e.store.BlockIDs(seq.ID()))
	trow.VerifyTokens = draftToks
	out, err := forwardSingle(ctx, e.pipe, trow)
	if err != nil {
		e.failSequence(seq, ErrPipelineFailed, err.Error())
		return
	}
	if len(out.Verify) == 0 || len(out.Verify[0]) != k+1 {
		e.failSequence(seq, ErrPipelineFailed, "pipeline returned no verification logits for a speculative row")
		return
	}
	verify := out.Verify[0]

	accepted, resampled := sampler.SpeculativeVerify(draftToks, draftLogits, verify[:k], seq.SamplerState)
	if e.metrics != nil {
		e.metrics.DraftTokensProposed.Add(float64(k))
		e.metrics.DraftTokensAccepted.Add(float64(accepted))
	}

	for _, tok := range draftToks[:accepted] {
		if !e.commitToken(seq, tok, nil) {
			return
		}
	}
	if accepted < k {
		e.commitToken(seq, resampled, nil)
		return
	}

	// Every draft token survived: the verify forward's final row is a free
	// bonus position, sampled through the full pipeline like any decode.
	outcome := e.sampleRow(seq, verify[k])
	if outcome.Kind == sampler.OutcomeDeadEnd {
		e.failSequence(seq, ErrConstraintDeadEnd, "no token permitted by the active constraint")
		return
	}
	e.commitToken(seq, outcome.Token, outcome.Logprobs)
}

// forwardSingle dispatches a one-row batch through p, returning the full
// Logits so callers can read Verify rows as well as the last-position row.
func forwardSingle(ctx context.Context, p pipeline.Pipeline, row pipeline.Row) (pipeline.Logits, error) {
	in, err := p.PrepareInputs(pipeline.Batch{Rows: []pipeline.Row{row}})
	if err != nil {
		return pipeline.Logits{}, err
	}
	out, err := p.Forward(ctx, in)
	if err != nil {
		return pipeline.Logits{}, err
	}
	if err := p.DeviceSynchronize(ctx); err != nil {
		return pipeline.Logits{}, err
	}
	if len(out.Rows) == 0 {
		return pipeline.Logits{}, fmt.Errorf("pipeline returned no logits rows")
	}
	return out, nil
}

func (e *Engine) recordGaugeSnapshot() {
	if e.metrics == nil {
		return
	}
	waiting, running := 0, 0
	for _, s := range e.seqs {
		switch s.State {
		case Waiting, Preempted:
			waiting++
		case Prefill, Decoding:
			running++
		}
	}
	e.metrics.QueueDepth.Set(float64(waiting))
	e.metrics.RunningSeqs.Set(float64(running))
	e.metrics.FreeBlocks.Set(float64(e.store.FreeBlocks()))
}

// tokenVocabAdapter lets the constraint Masker and the sampler's
// EOS-lookup share one Sequence's Detokenizer without either depending on
// tokenizer internals: PeekText previews a candidate token's text without
// mutating decode state.
type tokenVocabAdapter struct{ detok Detokenizer }

func (v tokenVocabAdapter) Decode(tokenID int) string {
	if v.detok == nil {
		return fmt.Sprintf("<%d>", tokenID)
	}
	return v.detok.PeekText(tokenID)
}
