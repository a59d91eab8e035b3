// Package scheduler implements SchedulerPolicy (C5): at each engine step it
// partitions the live population of sequences into the next micro-batch,
// honoring capacity, fairness, and paged-block availability (spec.md §4.5).
//
// # Reading Guide
//
//   - policy.go: the Policy interface, shared Plan/Capacity/population
//     types, and NewPolicy's name-based construction
//   - paged.go: the paged-mode algorithm — admit prefills greedily,
//     continue decodes, preempt on pressure, enforce fairness
//   - contiguous.go: the degenerate contiguous-mode algorithm (no
//     preemption, capacity is row count)
//   - admission.go: per-request AdmissionError validation run once, before
//     a request ever reaches the Waiting population
//
// Policy never touches engine.Sequence or kvcache.Store directly: it reads
// and returns plain data (WaitingSeq/RunningSeq/Plan) so this package has
// no dependency on the engine package, keeping the dependency edge
// one-directional (engine depends on scheduler, never the reverse).
package scheduler
