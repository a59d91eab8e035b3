// Package engine implements the core inference-serving control loop:
// request admission, scheduling, KV-cache management, pipeline dispatch,
// and sampling for one model replica, independent of any wire protocol.
//
// Start at engine.go (Engine, the step loop) and sequence.go (Sequence,
// the per-request lifecycle record it drives). The subpackages are each
// independently testable: kvcache owns block allocation, prefixcache owns
// cross-request KV reuse, scheduler owns admission/preemption decisions
// over plain structs (no dependency on this package, to avoid an import
// cycle), sampler owns the token-selection pipeline, and pipeline is the
// abstract model forward pass an Engine drives.
package engine
