// Package prefixcache matches new prompts against previously computed KV
// blocks so a shared prefix never needs to be recomputed.
//
// # Reading Guide
//
//   - fingerprint.go: chained, block-aligned token fingerprinting (xxhash)
//   - prefixcache.go: the Cache type — lookup, insert, pin/unpin, LRU
//     eviction of unpinned entries via hashicorp/golang-lru/v2
//
// A fingerprint is "pinned" while at least one live sequence is using the
// KV block it names; pinned entries never evict even under memory
// pressure, since evicting one would corrupt a sequence currently reading
// from that block. Unpinning returns the entry to the ordinary LRU pool,
// where it may still be matched by a future lookup until it is evicted.
package prefixcache
