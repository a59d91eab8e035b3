// Package engineconfig loads one replica's YAML configuration and builds
// the concrete engine.Engine components it names: which kvcache.Store
// variant, the prefixcache.Cache sizing, and the scheduler.Policy. The
// sampler_defaults section is parsed but not applied to requests.
// Grouped the way sim/config.go groups the teacher's simulator config:
// one struct per concern, field comments carrying the constraint instead
// of validation-time error strings alone.
package engineconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inferno-serve/inferno/engine"
	"github.com/inferno-serve/inferno/engine/kvcache"
	"github.com/inferno-serve/inferno/engine/prefixcache"
	"github.com/inferno-serve/inferno/engine/scheduler"
)

// KVCacheConfig selects and sizes the KV-cache Store variant.
type KVCacheConfig struct {
	Variant     string `yaml:"variant"`      // "paged" (default) or "contiguous"
	TotalBlocks int    `yaml:"total_blocks"` // paged: total fixed-size blocks; contiguous: ignored
	BlockSize   int    `yaml:"block_size"`   // paged: tokens per block (must be > 0); contiguous: ignored
	MaxBatch    int    `yaml:"max_batch"`    // contiguous: max concurrent rows; paged: ignored
	MaxSeqLen   int    `yaml:"max_seq_len"`  // contiguous: per-row token capacity; paged: ignored
}

func (c KVCacheConfig) Validate() error {
	switch c.Variant {
	case "", "paged":
		if c.TotalBlocks <= 0 {
			return fmt.Errorf("engineconfig: kv_cache.total_blocks must be > 0")
		}
		if c.BlockSize <= 0 {
			return fmt.Errorf("engineconfig: kv_cache.block_size must be > 0")
		}
	case "contiguous":
		if c.MaxBatch <= 0 {
			return fmt.Errorf("engineconfig: kv_cache.max_batch must be > 0")
		}
		if c.MaxSeqLen <= 0 {
			return fmt.Errorf("engineconfig: kv_cache.max_seq_len must be > 0")
		}
	default:
		return fmt.Errorf("engineconfig: unknown kv_cache.variant %q", c.Variant)
	}
	return nil
}

func (c KVCacheConfig) build() kvcache.Store {
	if c.Variant == "contiguous" {
		return kvcache.NewContiguous(c.MaxBatch, c.MaxSeqLen)
	}
	return kvcache.NewPaged(c.TotalBlocks, c.BlockSize)
}

// PrefixCacheConfig sizes the cross-request KV reuse layer.
type PrefixCacheConfig struct {
	Disabled bool `yaml:"disabled"`
	// EvictableCapacity bounds how many unpinned block fingerprints the
	// LRU pool may hold before evicting the oldest.
	EvictableCapacity int `yaml:"evictable_capacity"`
	// RedisAddr and RedisDB are parsed but Build does not read them: no
	// prefixcache.Persister (prefixcache/persist.go) is constructed from
	// this config.
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

func (c PrefixCacheConfig) Validate() error {
	if !c.Disabled && c.EvictableCapacity <= 0 {
		return fmt.Errorf("engineconfig: prefix_cache.evictable_capacity must be > 0 unless disabled")
	}
	return nil
}

// SchedulerConfig selects the admission/preemption policy and its limits.
type SchedulerConfig struct {
	Policy                 string `yaml:"policy"` // "paged" (default) or "contiguous"
	MaxNumSeqs             int    `yaml:"max_num_seqs"`
	MaxNumBatchedTokens    int    `yaml:"max_num_batched_tokens"` // 0 = unbounded
	MaxModelLen            int    `yaml:"max_model_len"`
	FairnessThresholdSteps int    `yaml:"fairness_threshold_steps"`
	MaxPreemptions         int    `yaml:"max_preemptions"` // 0 = unbounded
}

func (c SchedulerConfig) Validate() error {
	if c.MaxNumSeqs <= 0 {
		return fmt.Errorf("engineconfig: scheduler.max_num_seqs must be > 0")
	}
	if c.MaxModelLen <= 0 {
		return fmt.Errorf("engineconfig: scheduler.max_model_len must be > 0")
	}
	return nil
}

// SamplerDefaults holds the sampler_defaults section. Build does not apply
// these values and the Engine does not read them; a Request's
// SamplingParams are used as given.
type SamplerDefaults struct {
	Temperature     float32 `yaml:"temperature"`
	FreqPenalty     float32 `yaml:"freq_penalty"`
	PresencePenalty float32 `yaml:"presence_penalty"`
	PenaltyWindow   uint32  `yaml:"penalty_window"`
}

// PipelineConfig names which Pipeline implementation to construct. Concrete
// model backends are registered by the binary that imports them (the mock
// backend is always available, for the replay CLI and tests).
type PipelineConfig struct {
	Backend   string `yaml:"backend"`    // "mock" or a backend registered by the serving binary
	VocabSize int    `yaml:"vocab_size"` // mock backend only
	Drift     int    `yaml:"drift"`      // mock backend only

	// Drafts names the draft pipelines available for speculative decoding,
	// keyed by the id requests reference via SamplingParams.Speculative.
	Drafts map[string]DraftPipelineConfig `yaml:"drafts"`
}

// DraftPipelineConfig configures one draft pipeline for speculative
// decoding. The draft shares the target's vocabulary; only its backend
// knobs differ.
type DraftPipelineConfig struct {
	Backend string `yaml:"backend"` // "mock" or a backend registered by the serving binary
	Drift   int    `yaml:"drift"`   // mock backend only
}

func (c PipelineConfig) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("engineconfig: pipeline.backend must be set")
	}
	for id, d := range c.Drafts {
		if d.Backend == "" {
			return fmt.Errorf("engineconfig: pipeline.drafts[%s].backend must be set", id)
		}
	}
	return nil
}

// Config is one replica's full configuration, as loaded from YAML.
type Config struct {
	ModelID     string `yaml:"model_id"`
	IntakeBurst int    `yaml:"intake_burst"`
	Truncation  string `yaml:"truncation"` // "reject" (default) or "left_truncate"

	KVCache     KVCacheConfig     `yaml:"kv_cache"`
	PrefixCache PrefixCacheConfig `yaml:"prefix_cache"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Sampler     SamplerDefaults   `yaml:"sampler_defaults"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// Validate runs every section's Validate in turn, stopping at the first
// failure so a misconfigured replica fails fast at startup rather than
// mid-traffic.
func (c Config) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("engineconfig: model_id must be set")
	}
	for _, v := range []interface{ Validate() error }{c.KVCache, c.PrefixCache, c.Scheduler, c.Pipeline} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and parses a YAML config file, validating it before return.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("engineconfig: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("engineconfig: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// truncationPolicy maps the YAML string onto engine.TruncationPolicy.
func (c Config) truncationPolicy() engine.TruncationPolicy {
	if c.Truncation == "left_truncate" {
		return engine.LeftTruncate
	}
	return engine.RejectOverlong
}

// Build constructs the KV store, prefix cache, and scheduler policy this
// Config names, and an engine.Config ready to pass to engine.NewEngine
// alongside a Pipeline the caller constructs separately (pipeline backends
// are registered by the serving binary, not this package, so it can stay
// free of any one model runtime's dependencies).
func (c Config) Build() (kvcache.Store, *prefixcache.Cache, scheduler.Policy, engine.Config, error) {
	store := c.KVCache.build()

	policyName := c.Scheduler.Policy
	if policyName == "" {
		policyName = "paged"
		if c.KVCache.Variant == "contiguous" {
			policyName = "contiguous"
		}
	}
	policy, err := scheduler.NewPolicy(policyName)
	if err != nil {
		return nil, nil, nil, engine.Config{}, err
	}

	var cache *prefixcache.Cache
	if !c.PrefixCache.Disabled && store.BlockSize() > 0 {
		cache = prefixcache.New(store.BlockSize(), c.PrefixCache.EvictableCapacity, store)
	}

	ecfg := engine.Config{
		ModelID:                c.ModelID,
		IntakeBurst:            c.IntakeBurst,
		MaxModelLen:            c.Scheduler.MaxModelLen,
		MaxNumSeqs:             c.Scheduler.MaxNumSeqs,
		MaxNumBatchedTokens:    c.Scheduler.MaxNumBatchedTokens,
		FairnessThresholdSteps: c.Scheduler.FairnessThresholdSteps,
		MaxPreemptions:         c.Scheduler.MaxPreemptions,
		Truncation:             c.truncationPolicy(),
		DisablePrefixCache:     c.PrefixCache.Disabled || cache == nil,
	}
	return store, cache, policy, ecfg, nil
}
