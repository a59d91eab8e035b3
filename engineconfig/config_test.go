package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		ModelID:     "m1",
		IntakeBurst: 8,
		KVCache:     KVCacheConfig{Variant: "paged", TotalBlocks: 64, BlockSize: 16},
		PrefixCache: PrefixCacheConfig{EvictableCapacity: 128},
		Scheduler:   SchedulerConfig{Policy: "paged", MaxNumSeqs: 16, MaxModelLen: 4096},
		Pipeline:    PipelineConfig{Backend: "mock", VocabSize: 1000},
	}
}

func TestConfig_Validate_AcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected a well-formed config to validate, got %v", err)
	}
}

func TestConfig_Validate_RejectsMissingModelID(t *testing.T) {
	c := validConfig()
	c.ModelID = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for a missing model_id")
	}
}

func TestKVCacheConfig_Validate_PagedRequiresBlockSize(t *testing.T) {
	c := KVCacheConfig{Variant: "paged", TotalBlocks: 64}
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error when block_size is unset for a paged store")
	}
}

func TestKVCacheConfig_Validate_UnknownVariantRejected(t *testing.T) {
	c := KVCacheConfig{Variant: "tiered"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized kv_cache variant")
	}
}

func TestConfig_Build_WiresPagedStoreAndPrefixCache(t *testing.T) {
	store, cache, policy, ecfg, err := validConfig().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if store.TotalBlocks() != 64 {
		t.Fatalf("expected 64 total blocks, got %d", store.TotalBlocks())
	}
	if cache == nil {
		t.Fatal("expected a non-nil prefix cache for a paged store with prefix caching enabled")
	}
	if policy == nil {
		t.Fatal("expected a non-nil scheduler policy")
	}
	if ecfg.DisablePrefixCache {
		t.Fatal("expected DisablePrefixCache to be false when prefix caching is enabled")
	}
}

func TestLoad_ParsesSnakeCaseKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.yaml")
	doc := `model_id: m1
intake_burst: 8
kv_cache:
  variant: paged
  total_blocks: 128
  block_size: 16
prefix_cache:
  evictable_capacity: 64
scheduler:
  policy: paged
  max_num_seqs: 8
  max_num_batched_tokens: 2048
  max_model_len: 2048
  fairness_threshold_steps: 32
  max_preemptions: 4
pipeline:
  backend: mock
  vocab_size: 512
  drafts:
    draft-small:
      backend: mock
      drift: 3
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.KVCache.TotalBlocks != 128 || c.KVCache.BlockSize != 16 {
		t.Fatalf("kv_cache keys did not bind: %+v", c.KVCache)
	}
	if c.Scheduler.MaxModelLen != 2048 || c.Scheduler.FairnessThresholdSteps != 32 {
		t.Fatalf("scheduler keys did not bind: %+v", c.Scheduler)
	}
	if c.Pipeline.VocabSize != 512 {
		t.Fatalf("pipeline keys did not bind: %+v", c.Pipeline)
	}
	if d, ok := c.Pipeline.Drafts["draft-small"]; !ok || d.Drift != 3 {
		t.Fatalf("pipeline.drafts did not bind: %+v", c.Pipeline.Drafts)
	}
}

func TestConfig_Build_ContiguousSkipsPrefixCache(t *testing.T) {
	c := validConfig()
	c.KVCache = KVCacheConfig{Variant: "contiguous", MaxBatch: 8, MaxSeqLen: 2048}
	c.Scheduler.Policy = "contiguous"

	store, cache, _, ecfg, err := c.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if store.BlockSize() != 0 {
		t.Fatalf("expected a contiguous store to report BlockSize 0, got %d", store.BlockSize())
	}
	if cache != nil {
		t.Fatal("expected no prefix cache for a contiguous store")
	}
	if !ecfg.DisablePrefixCache {
		t.Fatal("expected DisablePrefixCache to be true when no cache was built")
	}
}
