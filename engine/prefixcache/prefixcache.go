package prefixcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// BlockReleaser is the subset of kvcache.Store the Cache needs to keep a
// block alive past the sequence that originally allocated it, and give it
// up again once evicted. Kept as a narrow interface so this package never
// imports engine/kvcache directly.
type BlockReleaser interface {
	// Retain takes an extra reference on blockID on the Cache's own
	// behalf, independent of whatever sequence currently holds it, so the
	// block survives that sequence's own Release call.
	Retain(blockID int)
	// ReleaseRetained drops the reference taken by Retain.
	ReleaseRetained(blockID int)
}

type entry struct {
	blockID  int
	refCount int
}

// Cache maps block-aligned token fingerprints to KV block ids. Matched
// entries are pinned (refcounted) for as long as a live sequence is reading
// them; unpinned entries are evictable and ordered by hashicorp/golang-lru/v2.
type Cache struct {
	blockSize int
	store     BlockReleaser

	lru    *lru.Cache[Fingerprint, entry]
	pinned map[Fingerprint]entry

	hits   uint64
	misses uint64
}

// New builds a Cache over a KV store with the given block size and
// eviction capacity (number of blocks the LRU pool may hold unpinned).
func New(blockSize, capacity int, store BlockReleaser) *Cache {
	c := &Cache{
		blockSize: blockSize,
		store:     store,
		pinned:    make(map[Fingerprint]entry),
	}
	l, _ := lru.NewWithEvict[Fingerprint, entry](capacity, func(fp Fingerprint, e entry) {
		c.store.ReleaseRetained(e.blockID)
	})
	c.lru = l
	return c
}

// Lookup returns the block ids of the longest block-aligned prefix of
// tokens already cached for modelID, pinning each matched block. The
// caller must Unpin once the sequence releases those blocks (on
// completion, or if admission fails after the lookup).
func (c *Cache) Lookup(modelID string, tokens []int) (blockIDs []int, matchedTokens int) {
	fps := Fingerprints(modelID, tokens, c.blockSize)
	for _, fp := range fps {
		e, ok := c.pinned[fp]
		if !ok {
			e, ok = c.lru.Peek(fp)
			if !ok {
				break
			}
			c.lru.Remove(fp)
		}
		e.refCount++
		c.pinned[fp] = e
		blockIDs = append(blockIDs, e.blockID)
		matchedTokens += c.blockSize
	}
	if matchedTokens > 0 {
		c.hits++
	} else {
		c.misses++
	}
	return blockIDs, matchedTokens
}

// MatchedLength reports the length of the longest block-aligned prefix
// already cached for modelID, without pinning anything. Used by the Engine
// to size a scheduling decision before it knows whether this sequence will
// actually be admitted this step; callers that do admit it must still call
// Lookup to pin the match and get its block ids.
func (c *Cache) MatchedLength(modelID string, tokens []int) int {
	fps := Fingerprints(modelID, tokens, c.blockSize)
	matched := 0
	for _, fp := range fps {
		if _, ok := c.pinned[fp]; ok {
			matched += c.blockSize
			continue
		}
		if _, ok := c.lru.Peek(fp); ok {
			matched += c.blockSize
			continue
		}
		break
	}
	return matched
}

// Unpin releases one reference on each of the given fingerprints, returning
// any that reach zero references to the evictable LRU pool.
func (c *Cache) Unpin(modelID string, tokens []int, n int) {
	fps := Fingerprints(modelID, tokens, c.blockSize)
	if n > len(fps) {
		n = len(fps)
	}
	for i := 0; i < n; i++ {
		fp := fps[i]
		e, ok := c.pinned[fp]
		if !ok {
			continue
		}
		e.refCount--
		if e.refCount <= 0 {
			delete(c.pinned, fp)
			c.lru.Add(fp, entry{blockID: e.blockID})
			continue
		}
		c.pinned[fp] = e
	}
}

// Insert records newly completed full blocks (e.g. once a prefill finishes
// and its last partial block becomes full) so future prompts can match
// them. Blocks already present are left untouched: a re-insert from a
// different sequence never steals or re-pins an existing entry — the
// caller retains its own reference via Release/Retain on the underlying
// store instead.
func (c *Cache) Insert(modelID string, tokens []int, blockIDs []int) {
	fps := Fingerprints(modelID, tokens, c.blockSize)
	n := len(fps)
	if len(blockIDs) < n {
		n = len(blockIDs)
	}
	for i := 0; i < n; i++ {
		fp := fps[i]
		if _, ok := c.pinned[fp]; ok {
			continue
		}
		if _, ok := c.lru.Peek(fp); ok {
			continue
		}
		// Take our own reference so the block outlives the sequence that
		// filled it. When the caller has already Released that sequence (as
		// Engine.releaseAndDonate does), this pulls a block whose refcount
		// just reached zero back out of the store's free pool.
		c.store.Retain(blockIDs[i])
		c.lru.Add(fp, entry{blockID: blockIDs[i]})
	}
}

// EvictUnpinned forces up to need least-recently-used unpinned entries out
// of the cache, each one releasing its retained reference back to the
// underlying store (and, once that block's refcount reaches zero, back to
// the store's free pool). It returns the number of blocks actually freed,
// which may be less than need if the unpinned pool is exhausted first.
//
// Insert's own capacity-triggered eviction only fires when a new entry
// pushes the LRU past its configured capacity; it cannot be invoked on
// demand. This is the hook spec.md §4.5 rule 5 requires: a starved Waiting
// sequence is admitted "even if it requires evicting PrefixCache entries,"
// which needs a caller-driven way to free blocks currently tied up in
// cached-but-unreferenced prefixes before retrying admission.
func (c *Cache) EvictUnpinned(need int) (freed int) {
	for freed < need {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		freed++
	}
	return freed
}

// HitRate reports the fraction of Lookup calls that matched at least one
// block, for the metrics surface.
func (c *Cache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) Hits() uint64   { return c.hits }
func (c *Cache) Misses() uint64 { return c.misses }

// Len reports the number of evictable (unpinned) entries currently held.
func (c *Cache) Len() int { return c.lru.Len() }

// PinnedLen reports the number of pinned entries currently held.
func (c *Cache) PinnedLen() int { return len(c.pinned) }
