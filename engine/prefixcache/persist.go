package prefixcache

import (
	"context"
	"fmt"
	"strconv"
)

// RedisSetClient abstracts the minimal surface persist needs, mirroring the
// narrow-interface pattern etalazz-vsa uses for its Redis persister:
// callers wrap github.com/redis/go-redis/v9's *redis.Client with a thin
// adapter translating SAdd/SMembers' *redis.IntCmd/*redis.StringSliceCmd
// into plain (error)/([]string, error), or substitute a fake in tests.
type RedisSetClient interface {
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Persister publishes a model's known-hot fingerprints to Redis so a
// freshly started replica can warm its own Cache against prefixes other
// replicas have already served, without ever sharing block ids — those
// remain purely local to a process's KV store. This is a cache warmth hint,
// not a correctness dependency: a replica that skips restore simply starts
// cold.
type Persister struct {
	client RedisSetClient
}

func NewPersister(client RedisSetClient) *Persister {
	return &Persister{client: client}
}

func snapshotKey(modelID string) string {
	return fmt.Sprintf("prefixcache:fingerprints:%s", modelID)
}

// Snapshot publishes every currently known fingerprint (pinned and
// unpinned) for modelID to the shared set.
func (p *Persister) Snapshot(ctx context.Context, modelID string, c *Cache) error {
	members := make([]any, 0, len(c.pinned)+c.lru.Len())
	for fp := range c.pinned {
		members = append(members, strconv.FormatUint(uint64(fp), 10))
	}
	for _, fp := range c.lru.Keys() {
		members = append(members, strconv.FormatUint(uint64(fp), 10))
	}
	if len(members) == 0 {
		return nil
	}
	if err := p.client.SAdd(ctx, snapshotKey(modelID), members...); err != nil {
		return fmt.Errorf("prefixcache: snapshot model=%s: %w", modelID, err)
	}
	return nil
}

// KnownFingerprints returns the set of fingerprints previously published
// for modelID, for use as a warm-start hint (e.g. to prioritize admitting
// requests whose prefix is already known-hot cluster-wide).
func (p *Persister) KnownFingerprints(ctx context.Context, modelID string) (map[Fingerprint]struct{}, error) {
	raw, err := p.client.SMembers(ctx, snapshotKey(modelID))
	if err != nil {
		return nil, fmt.Errorf("prefixcache: load model=%s: %w", modelID, err)
	}
	out := make(map[Fingerprint]struct{}, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			continue
		}
		out[Fingerprint(v)] = struct{}{}
	}
	return out, nil
}
