package kvcache

// Paged is the fixed-size block allocator variant of Store: a pool of
// fixed-size blocks tracked with per-block refcounts and a shared free
// list (block.go), reused across sequences under prefix sharing and
// released in reverse order. Prefix hashing itself lives in
// engine/prefixcache, which is the caller that supplies cachedBlocks and
// decides what to retain on Release.
type Paged struct {
	blockSize   int
	blocks      []*Block
	free        freeList
	usedCount   int
	requestMap  map[string][]int
}

// NewPaged creates a Paged store with totalBlocks blocks of blockSize
// token positions each, all initially free.
func NewPaged(totalBlocks, blockSize int) *Paged {
	p := &Paged{
		blockSize:  blockSize,
		blocks:     make([]*Block, totalBlocks),
		requestMap: make(map[string][]int),
	}
	for i := 0; i < totalBlocks; i++ {
		b := &Block{ID: i}
		p.blocks[i] = b
		p.free.pushBack(b)
	}
	return p
}

func (p *Paged) BlockSize() int    { return p.blockSize }
func (p *Paged) TotalBlocks() int  { return len(p.blocks) }
func (p *Paged) FreeBlocks() int   { return len(p.blocks) - p.usedCount }

func (p *Paged) BlocksNeeded(promptLen, cachedLen int) int {
	remaining := promptLen - cachedLen
	if remaining <= 0 {
		return 0
	}
	return (remaining + p.blockSize - 1) / p.blockSize
}

// Allocate reuses cachedBlocks (already block-aligned, refcounted by the
// caller's PrefixCache lookup) for the matched prefix and allocates fresh
// blocks from the free pool for the remaining tokens.
func (p *Paged) Allocate(seqID string, promptLen int, cachedBlocks []int) ([]int, bool) {
	cachedLen := len(cachedBlocks) * p.blockSize
	remaining := promptLen - cachedLen
	if remaining < 0 {
		remaining = 0
	}
	needed := p.BlocksNeeded(promptLen, cachedLen)
	if needed > p.FreeBlocks() {
		return nil, false
	}

	allocated := make([]int, 0, len(cachedBlocks)+needed)
	for _, id := range cachedBlocks {
		b := p.blocks[id]
		if b.RefCount == 0 {
			p.free.remove(b)
			p.usedCount++
		}
		b.RefCount++
		allocated = append(allocated, id)
	}

	left := remaining
	for i := 0; i < needed; i++ {
		b := p.free.popFront()
		if b == nil {
			// Should not happen: we checked FreeBlocks() >= needed above and
			// nothing else can race with this single-threaded allocator.
			return nil, false
		}
		p.usedCount++
		b.RefCount = 1
		n := p.blockSize
		if left < n {
			n = left
		}
		b.Filled = n
		left -= n
		allocated = append(allocated, b.ID)
	}

	p.requestMap[seqID] = allocated
	return allocated, true
}

func (p *Paged) Append(seqID string) bool {
	ids := p.requestMap[seqID]
	if len(ids) == 0 {
		return false
	}
	last := p.blocks[ids[len(ids)-1]]
	if last.Filled < p.blockSize {
		last.Filled++
		return true
	}
	b := p.free.popFront()
	if b == nil {
		return false
	}
	p.usedCount++
	b.RefCount = 1
	b.Filled = 1
	p.requestMap[seqID] = append(ids, b.ID)
	return true
}

func (p *Paged) Release(seqID string) []int {
	ids := p.requestMap[seqID]
	delete(p.requestMap, seqID)
	// Free in reverse order: the last block hashes the longest prefix and
	// is least likely to be reused, so it should be evicted first.
	for i := len(ids) - 1; i >= 0; i-- {
		b := p.blocks[ids[i]]
		b.RefCount--
		if b.RefCount == 0 {
			b.Filled = 0
			p.usedCount--
			p.free.pushBack(b)
		}
	}
	return ids
}

// Retain bumps a block's refcount without assigning it to any sequence,
// used by engine/prefixcache to pin a just-released block it wants to keep
// for reuse instead of letting it return to the free pool.
func (p *Paged) Retain(blockID int) {
	b := p.blocks[blockID]
	if b.RefCount == 0 {
		p.free.remove(b)
		p.usedCount++
	}
	b.RefCount++
}

// ReleaseRetained drops one reference taken via Retain, returning the block
// to the free pool if it reaches zero. Used by PrefixCache eviction.
func (p *Paged) ReleaseRetained(blockID int) {
	b := p.blocks[blockID]
	b.RefCount--
	if b.RefCount == 0 {
		b.Filled = 0
		p.usedCount--
		p.free.pushBack(b)
	}
}

func (p *Paged) Fork(parentSeqID string, atPos int) ([]int, bool) {
	parent := p.requestMap[parentSeqID]
	if len(parent) == 0 {
		return nil, false
	}
	fullBlocks := atPos / p.blockSize
	if fullBlocks > len(parent) {
		fullBlocks = len(parent)
	}
	child := make([]int, 0, len(parent))
	for i := 0; i < fullBlocks; i++ {
		b := p.blocks[parent[i]]
		b.RefCount++
		child = append(child, b.ID)
	}

	// Copy-on-write the trailing partial block, if any: the parent and
	// child must not share a block that either may still append to.
	tailIdx := fullBlocks
	if tailIdx < len(parent) {
		parentTail := p.blocks[parent[tailIdx]]
		if p.FreeBlocks() < 1 {
			// roll back the refcounts already taken on full blocks
			for _, id := range child {
				p.blocks[id].RefCount--
			}
			return nil, false
		}
		childTail := p.free.popFront()
		p.usedCount++
		childTail.RefCount = 1
		childTail.Filled = parentTail.Filled
		child = append(child, childTail.ID)
	}

	return child, true
}

// CommitFork assigns a forked block table (produced by Fork) to its new
// sequence id. Split from Fork so the caller can decide not to commit (e.g.
// if the rest of admission fails) without leaking the block reservation —
// in that case it must Release the returned ids itself.
func (p *Paged) CommitFork(childSeqID string, blockIDs []int) {
	p.requestMap[childSeqID] = blockIDs
}

func (p *Paged) BlockIDs(seqID string) []int {
	ids := p.requestMap[seqID]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}
