package kvcache

// Contiguous is the degenerate KV-cache variant: one pre-allocated
// per-layer K/V row per sequence, sized for max_seq_len, no block sharing,
// no preemption. Capacity is strictly maxBatch concurrent sequences.
// Grounded on the same Store shape as Paged so SchedulerPolicy can treat
// both uniformly.
type Contiguous struct {
	maxBatch   int
	maxSeqLen  int
	filled     map[string]int
	order      []string // insertion order, for deterministic iteration only
}

func NewContiguous(maxBatch, maxSeqLen int) *Contiguous {
	return &Contiguous{
		maxBatch:  maxBatch,
		maxSeqLen: maxSeqLen,
		filled:    make(map[string]int),
	}
}

func (c *Contiguous) BlockSize() int   { return 0 }
func (c *Contiguous) TotalBlocks() int { return c.maxBatch }
func (c *Contiguous) FreeBlocks() int  { return c.maxBatch - len(c.filled) }

// BlocksNeeded is always zero: contiguous rows are reserved whole, not in
// blocks. Capacity is gated by row count, checked in Allocate.
func (c *Contiguous) BlocksNeeded(_, _ int) int { return 0 }

func (c *Contiguous) Allocate(seqID string, promptLen int, cachedBlocks []int) ([]int, bool) {
	if len(cachedBlocks) != 0 {
		// Contiguous mode has no prefix sharing; a caller that passes
		// cached blocks here is misusing the interface.
		return nil, false
	}
	if promptLen > c.maxSeqLen {
		return nil, false
	}
	if len(c.filled) >= c.maxBatch {
		return nil, false
	}
	if _, exists := c.filled[seqID]; exists {
		return nil, false
	}
	c.filled[seqID] = promptLen
	c.order = append(c.order, seqID)
	return []int{rowToken}, true
}

// rowToken is the single placeholder "block id" Contiguous reports for an
// allocated row, so callers that inspect BlockIDs() see a non-empty table
// for any live sequence (block_ids is empty iff the sequence is not
// currently holding cache space) even though contiguous mode has no real
// blocks.
const rowToken = 0

func (c *Contiguous) Append(seqID string) bool {
	n, ok := c.filled[seqID]
	if !ok {
		return false
	}
	if n >= c.maxSeqLen {
		return false
	}
	c.filled[seqID] = n + 1
	return true
}

func (c *Contiguous) Release(seqID string) []int {
	if _, ok := c.filled[seqID]; !ok {
		return nil
	}
	delete(c.filled, seqID)
	for i, id := range c.order {
		if id == seqID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return []int{rowToken}
}

// Fork is unsupported: contiguous rows cannot be shared between sequences.
func (c *Contiguous) Fork(_ string, _ int) ([]int, bool) { return nil, false }

func (c *Contiguous) BlockIDs(seqID string) []int {
	if _, ok := c.filled[seqID]; !ok {
		return nil
	}
	return []int{rowToken}
}

// Retain and ReleaseRetained satisfy prefixcache.BlockReleaser so a
// Contiguous store can be wired into a Cache uniformly with Paged, even
// though prefix sharing never actually happens here (BlockSize() == 0
// means Fingerprints always returns nil, so Insert/Lookup are no-ops).
func (c *Contiguous) Retain(blockID int)        {}
func (c *Contiguous) ReleaseRetained(blockID int) {}
