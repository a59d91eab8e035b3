// Package kvcache implements KVCacheManager: the component owning
// layer-wise K/V tensor storage for live sequences.
//
// # Reading Guide
//
// Start with store.go for the Store interface both variants satisfy, then:
//   - contiguous.go: one fixed row per sequence, no sharing, no preemption
//   - paged.go: fixed-size block allocator with prefix sharing and
//     copy-on-write, using a refcounted free list (block-aligned prefix
//     hashing lives in engine/prefixcache, not here)
//   - block.go: the Block type and its refcount/LRU-list invariants
//
// Sequences never hold an owning reference to a Block — only an opaque
// index into a Store. Blocks are owned exclusively by the Store; the
// engine/prefixcache package holds additional refcounts on top. This
// avoids a cyclic ownership graph between Sequence and KV entries by
// using an arena + integer-id + refcount scheme instead of a
// smart-pointer graph.
package kvcache
