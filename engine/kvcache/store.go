package kvcache

// Store is the interface both KV-cache variants satisfy. The Engine and
// SchedulerPolicy depend only on this interface; Contiguous and Paged are
// swappable behind it, and new variants (e.g. a tiered GPU+CPU store) can
// be added by implementing it without the engine package needing to know
// about them. There is no factory registry: engineconfig constructs the two
// built-in variants by name.
type Store interface {
	// BlockSize returns the number of token positions per block. Contiguous
	// stores return 0 (the concept does not apply).
	BlockSize() int
	TotalBlocks() int
	FreeBlocks() int

	// BlocksNeeded reports how many additional blocks Allocate would need
	// to reserve promptLen tokens given cachedLen already-matched prefix
	// tokens. Used by SchedulerPolicy for admission math without mutating
	// state. Contiguous always returns 0.
	BlocksNeeded(promptLen, cachedLen int) int

	// Allocate reserves cache space for a sequence's prompt. cachedBlocks
	// are block ids already holding the matched prefix (refcounts already
	// bumped by the caller via PrefixCache); Allocate takes ownership of
	// extending them with newly allocated blocks for the remainder.
	// Returns false if there is insufficient free capacity; no state is
	// mutated on failure, so the caller can treat it as a preemption signal.
	Allocate(seqID string, promptLen int, cachedBlocks []int) (blockIDs []int, ok bool)

	// Append advances seqID by one generated token. Returns false if a new
	// block was needed and none was free; on false, no partial mutation is
	// left behind (the sequence's existing blocks are unchanged).
	Append(seqID string) (ok bool)

	// Release decrements refcounts for all of seqID's blocks and returns
	// to the free pool those that reach zero, in reverse block order (the
	// last block hashes the longest prefix and is least reusable, so it
	// is evicted first). Returns the full block id list the sequence
	// held, so the caller can offer full blocks to PrefixCache before
	// eviction.
	Release(seqID string) (blockIDs []int)

	// Fork produces a child block table for a new sequence that shares all
	// full blocks of parentSeqID up to atPos (refcount++) and copy-on-writes
	// the trailing partial block. Contiguous stores cannot share rows and
	// always return ok=false.
	Fork(parentSeqID string, atPos int) (childBlockIDs []int, ok bool)

	// BlockIDs returns the current block table for a live sequence.
	BlockIDs(seqID string) []int

	// Retain takes an extra reference on blockID independent of any
	// sequence's own refcount, so the block survives that sequence's
	// Release call. Satisfies prefixcache.BlockReleaser.
	Retain(blockID int)
	// ReleaseRetained drops the reference taken by Retain.
	ReleaseRetained(blockID int)
}
